package tdms

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

// WriterOptions configures a [Writer]. The zero value is not valid;
// construct one with [DefaultWriterOptions] and override the fields that
// matter.
type WriterOptions struct {
	// Version is the lead-in version field written to every segment.
	// Valid values are 4712 and 4713; zero defaults to 4713.
	Version uint32

	// CreateIndexFile causes the writer to maintain a companion
	// .tdms_index file alongside the data file, mirroring every
	// segment's lead-in and metadata but none of its raw data.
	CreateIndexFile bool

	// Interleaved selects interleaved raw data layout for segments with
	// more than one channel carrying data. Non-interleaved (the default)
	// writes each channel's chunk contiguously.
	Interleaved bool

	// BigEndian selects big-endian encoding for everything past the ToC
	// mask. Defaults to little endian, matching the overwhelming majority
	// of TDMS files in the wild.
	BigEndian bool

	// BufferSize is advisory: channel pending buffers are drawn from a
	// shared pool sized by pendingBufferDefaultSize and grow on demand
	// regardless of this value. Kept for callers that want to assert a
	// minimum without reaching into package internals. Zero is fine.
	BufferSize int

	// Logger receives diagnostic events while writing. Defaults to a
	// no-op logger.
	Logger *zap.Logger
}

// DefaultWriterOptions returns the recommended starting point for
// [WriterOptions]: version 4713, little endian, non-interleaved, no index
// file.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		Version:    4713,
		BufferSize: pendingBufferDefaultSize,
	}
}

func (o WriterOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return nopLogger()
	}
	return o.Logger
}

func (o WriterOptions) byteOrder() binary.ByteOrder {
	if o.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

type writerChannel struct {
	groupName string
	name      string
	path      string
	dataType  DataType

	pending          *pendingBuffer
	pendingStringLen []uint32 // per-value byte length, DataTypeString only.
	pendingNumValues uint64

	hasCommittedData bool // true once any segment has carried this channel's raw data.
	touchedThisWrite bool // true if AppendValues/AppendStrings was called since the last WriteSegment.
}

type writerObject struct {
	path       string
	properties map[string]Property
	dirty      bool // a property changed since the last committed segment.
	isNew      bool // never yet appeared in a committed segment's object list.
}

// committedSegment tracks the last segment actually written to disk, so
// WriteSegment can decide whether a subsequent call only needs to append
// raw data (see appendRawDataOnly) rather than write a whole new segment.
type committedSegment struct {
	leadInOffset      int64 // data file offset of this segment's lead-in.
	indexLeadInOffset int64 // mirrored lead-in offset in the index file, if any.
	nextSegmentOffset uint64 // mirrored byte-for-byte into the index file's lead-in, grown in lockstep on every raw-data-only append.
	rawDataOffset     uint64
	channelOrder      []string          // object paths carrying raw data, in on-disk order.
	chunkNumValues    map[string]uint64 // per-channel value count of a single chunk.
}

// Writer builds a TDMS file (and, optionally, its companion index file)
// incrementally: declare groups, channels and properties, append raw
// values, and call WriteSegment to flush. Values appended between
// WriteSegment calls are buffered in memory; WriteSegment decides whether
// that buffer can be appended onto the previous segment in place or needs
// a whole new segment, and writes a crash-safe INCOMPLETE lead-in while
// the segment body is in flight.
type Writer struct {
	opts  WriterOptions
	order binary.ByteOrder

	data      io.WriteSeeker
	index     io.WriteSeeker
	closeData func() error

	groupOrder   []string        // group names, in declaration order.
	groupSet     map[string]bool // existence only; properties live in objects.
	channelOrder []string        // channel object paths, in declaration order.
	channels     map[string]*writerChannel
	objects      map[string]*writerObject // root/group/channel property state, keyed by path.

	committed *committedSegment
}

// NewWriter creates a Writer that writes segments to data, and — if
// opts.CreateIndexFile is set — mirrors their lead-in and metadata to
// index (which must be non-nil in that case).
func NewWriter(data io.WriteSeeker, index io.WriteSeeker, opts WriterOptions) (*Writer, error) {
	if opts.Version == 0 {
		opts.Version = 4713
	}
	if opts.Version != 4712 && opts.Version != 4713 {
		return nil, newError(KindUnsupported, -1, "", fmt.Sprintf("unsupported version %d", opts.Version), ErrUnsupportedVersion)
	}
	if opts.CreateIndexFile && index == nil {
		return nil, invariantf("CreateIndexFile set but no index writer supplied")
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = pendingBufferDefaultSize
	}

	return &Writer{
		opts:     opts,
		order:    opts.byteOrder(),
		data:     data,
		index:    index,
		groupSet: make(map[string]bool),
		channels: make(map[string]*writerChannel),
		objects:  make(map[string]*writerObject),
	}, nil
}

// CreateFile opens (creating or truncating) a data file at dataPath for
// writing, and — if opts.CreateIndexFile is set — a companion index file
// at dataPath with "_index" appended ("data.tdms" becomes
// "data.tdms_index"). The caller
// must call [Writer.Close] when done.
func CreateFile(dataPath string, opts WriterOptions) (*Writer, error) {
	dataFile, err := os.Create(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create data file %s: %w", dataPath, err)
	}

	var indexFile *os.File
	if opts.CreateIndexFile {
		indexFile, err = os.Create(dataPath + "_index")
		if err != nil {
			_ = dataFile.Close()
			return nil, fmt.Errorf("failed to create index file: %w", err)
		}
	}

	var idx io.WriteSeeker
	if indexFile != nil {
		idx = indexFile
	}

	w, err := NewWriter(dataFile, idx, opts)
	if err != nil {
		_ = dataFile.Close()
		if indexFile != nil {
			_ = indexFile.Close()
		}
		return nil, err
	}

	w.closeData = func() error {
		err := dataFile.Close()
		if indexFile != nil {
			if ierr := indexFile.Close(); err == nil {
				err = ierr
			}
		}
		return err
	}

	return w, nil
}

// Close flushes any buffered data as a final segment, returns every
// channel's pending buffer to the shared pool, and closes the underlying
// files, if the Writer was created via [CreateFile].
func (w *Writer) Close() error {
	err := w.WriteSegment()

	for _, ch := range w.channels {
		defaultPendingBufferPool.Put(ch.pending)
		ch.pending = nil
	}

	if err != nil {
		return err
	}
	if w.closeData != nil {
		return w.closeData()
	}
	return nil
}

// SetProperty sets a property on the root object, a group, or a channel,
// identified by its TDMS path ("/" for the root, "/'group'", or
// "/'group'/'channel'"). The group or channel must already exist via
// [Writer.EnsureGroup] / [Writer.EnsureChannel].
func (w *Writer) SetProperty(path string, prop Property) error {
	group, channel, err := parsePath(path)
	if err != nil {
		return err
	}

	if group != "" {
		if _, ok := w.groupSet[group]; !ok {
			return invariantf("group %q does not exist", group)
		}
	}
	if group != "" && channel != "" {
		if _, ok := w.channels[path]; !ok {
			return invariantf("channel %q does not exist", path)
		}
	}

	obj := w.getObject(path)
	obj.properties[prop.Name] = prop
	obj.dirty = true
	return nil
}

// getObject returns (creating if necessary) the writerObject tracking
// property/object-list state for path, which may be the root ("/"), a
// group, or a channel.
func (w *Writer) getObject(path string) *writerObject {
	obj, ok := w.objects[path]
	if !ok {
		obj = &writerObject{path: path, properties: make(map[string]Property), isNew: true}
		w.objects[path] = obj
	}
	return obj
}

// EnsureGroup declares a group, if it doesn't already exist. It is safe to
// call repeatedly.
func (w *Writer) EnsureGroup(name string) error {
	if w.groupSet[name] {
		return nil
	}
	w.groupSet[name] = true
	w.groupOrder = append(w.groupOrder, name)
	w.getObject(encodePath(name, "")).dirty = true
	return nil
}

// EnsureChannel declares a channel of the given data type under group, if
// it doesn't already exist. Calling it again for an existing channel with
// a different dataType returns an error wrapping [ErrTypeMismatch]: a
// channel's element type cannot change once data of another type has been
// declared.
func (w *Writer) EnsureChannel(group, name string, dataType DataType) error {
	if !dataType.supportedForChannelData() {
		return unsupportedf(-1, "data type %s cannot be written to channel raw data", dataType)
	}

	if err := w.EnsureGroup(group); err != nil {
		return err
	}

	path := encodePath(group, name)
	if existing, ok := w.channels[path]; ok {
		if existing.dataType != dataType {
			return typeConflictf(path, "channel already declared with data type %s, cannot redeclare as %s", existing.dataType, dataType)
		}
		return nil
	}

	w.channels[path] = &writerChannel{
		groupName: group,
		name:      name,
		path:      path,
		dataType:  dataType,
		pending:   defaultPendingBufferPool.Get(),
	}
	w.channelOrder = append(w.channelOrder, path)
	w.getObject(path).dirty = true
	return nil
}

// AppendValues appends a batch of values to a channel, previously declared
// with a matching [DataType] via [Writer.EnsureChannel]. values must be a
// slice of the Go type corresponding to the channel's DataType (e.g.
// []float64 for DataTypeFloat64, []Timestamp or []time.Time for
// DataTypeTimestamp). Use [Writer.AppendStrings] for DataTypeString.
func (w *Writer) AppendValues(group, channel string, values any) error {
	path := encodePath(group, channel)
	ch, ok := w.channels[path]
	if !ok {
		return invariantf("channel %q does not exist", path)
	}
	if ch.dataType == DataTypeString {
		return typeConflictf(path, "use AppendStrings for string channels")
	}

	n, err := appendTypedValues(ch.pending, w.order, ch.dataType, values)
	if err != nil {
		return err
	}

	ch.pendingNumValues += uint64(n)
	ch.touchedThisWrite = true
	return nil
}

// AppendStrings appends a batch of string values to a channel declared
// with DataTypeString.
func (w *Writer) AppendStrings(group, channel string, values []string) error {
	path := encodePath(group, channel)
	ch, ok := w.channels[path]
	if !ok {
		return invariantf("channel %q does not exist", path)
	}
	if ch.dataType != DataTypeString {
		return typeConflictf(path, "channel is not of type String")
	}

	for _, s := range values {
		ch.pending.Append([]byte(s))
		ch.pendingStringLen = append(ch.pendingStringLen, uint32(len(s)))
	}
	ch.pendingNumValues += uint64(len(values))
	ch.touchedThisWrite = true
	return nil
}

// appendTypedValues type-switches on values, validates the result against
// dt, and only then encodes each element into buf per dt's on-disk layout
// — checking before writing anything, so a type mismatch never leaves
// buf with partially-encoded garbage appended to it.
func appendTypedValues(buf *pendingBuffer, order binary.ByteOrder, dt DataType, values any) (int, error) {
	switch v := values.(type) {
	case []int8:
		if err := checkType(dt, DataTypeInt8); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeInt8(nil, order, x))
		}
		return len(v), nil
	case []int16:
		if err := checkType(dt, DataTypeInt16); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeInt16(nil, order, x))
		}
		return len(v), nil
	case []int32:
		if err := checkType(dt, DataTypeInt32); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeInt32(nil, order, x))
		}
		return len(v), nil
	case []int64:
		if err := checkType(dt, DataTypeInt64); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeInt64(nil, order, x))
		}
		return len(v), nil
	case []uint8:
		if err := checkType(dt, DataTypeUint8); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeUint8(nil, order, x))
		}
		return len(v), nil
	case []uint16:
		if err := checkType(dt, DataTypeUint16); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeUint16(nil, order, x))
		}
		return len(v), nil
	case []uint32:
		if err := checkType(dt, DataTypeUint32); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeUint32(nil, order, x))
		}
		return len(v), nil
	case []uint64:
		if err := checkType(dt, DataTypeUint64); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeUint64(nil, order, x))
		}
		return len(v), nil
	case []float32:
		if err := checkTypeAny(dt, DataTypeFloat32, DataTypeFloat32WithUnit); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeFloat32(nil, order, x))
		}
		return len(v), nil
	case []float64:
		if err := checkTypeAny(dt, DataTypeFloat64, DataTypeFloat64WithUnit); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeFloat64(nil, order, x))
		}
		return len(v), nil
	case []Float128:
		if err := checkTypeAny(dt, DataTypeFloat128, DataTypeFloat128WithUnit); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeFloat128(x, order))
		}
		return len(v), nil
	case []bool:
		if err := checkType(dt, DataTypeBool); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeBool(nil, order, x))
		}
		return len(v), nil
	case []Timestamp:
		if err := checkType(dt, DataTypeTimestamp); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeTimestamp(nil, order, x))
		}
		return len(v), nil
	case []time.Time:
		if err := checkType(dt, DataTypeTimestamp); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeTimestamp(nil, order, NewTimestamp(x)))
		}
		return len(v), nil
	case []complex64:
		if err := checkType(dt, DataTypeComplex64); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeComplex64(nil, order, x))
		}
		return len(v), nil
	case []complex128:
		if err := checkType(dt, DataTypeComplex128); err != nil {
			return 0, err
		}
		for _, x := range v {
			buf.Append(encodeComplex128(nil, order, x))
		}
		return len(v), nil
	default:
		return 0, unsupportedf(-1, "AppendValues does not support %T", values)
	}
}

func checkType(got, want DataType) error {
	if got != want {
		return typeConflictf("", "channel data type is %s, cannot append %s values", got, want)
	}
	return nil
}

func checkTypeAny(got DataType, want ...DataType) error {
	for _, w := range want {
		if got == w {
			return nil
		}
	}
	return typeConflictf("", "channel data type is %s, incompatible with appended values", got)
}
