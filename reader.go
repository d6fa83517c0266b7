package tdms

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"

	"go.uber.org/zap"
)

// ReaderOptions configures a [File] opened with [New] or [Open]. The zero
// value is ready to use: tolerant reading, no diagnostic logging.
type ReaderOptions struct {
	// Strict causes the INCOMPLETE lead-in sentinel (a file left behind by
	// a writer that crashed mid-segment) to be reported as [ErrTruncated]
	// instead of being treated as a clean end of file.
	Strict bool

	// Logger receives diagnostic events while reading. Defaults to a no-op
	// logger.
	Logger *zap.Logger
}

func (o ReaderOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return nopLogger()
	}
	return o.Logger
}

// File represents a parsed TDMS file. Use [Open] to open a file by path, or
// [New] to parse one from an [io.ReadSeeker] already in memory.
type File struct {
	Groups       map[string]Group
	Properties   map[string]Property
	IsIncomplete bool

	data     io.ReadSeeker
	size     int64
	isIndex  bool
	opts     ReaderOptions
	segments []segment

	// objects does not hold pointers: we want these to be separate
	// instances from the ones held by each segment, since this represents
	// the object's properties as of the *end* of the file, not as it
	// appeared at some earlier segment.
	objects map[string]object
}

// New parses a [File] from the given [io.ReadSeeker]. Set isIndex to true
// when reader holds the contents of a .tdms_index file rather than the
// data file itself. size must be the total byte length reachable through
// reader.
func New(reader io.ReadSeeker, isIndex bool, size int64, opts ...ReaderOptions) (*File, error) {
	var o ReaderOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	f := &File{
		Groups:     make(map[string]Group),
		Properties: make(map[string]Property),
		data:       reader,
		size:       size,
		isIndex:    isIndex,
		opts:       o,
		objects:    make(map[string]object),
	}

	if err := f.readMetadata(); err != nil {
		return nil, err
	}

	return f, nil
}

// Open opens and parses the TDMS file at the given path. If the filename
// ends with ".tdms_index" it is treated as an index file, in which case
// channel data cannot be read from the result directly — use [OpenIndexed]
// to pair it with its data file for that. The caller must call [File.Close]
// when done.
func Open(filename string, opts ...ReaderOptions) (*File, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to get file info for %s: %w", filename, err)
	}

	f, err := New(file, strings.HasSuffix(filename, ".tdms_index"), fileInfo.Size(), opts...)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	return f, nil
}

// OpenIndexed opens a data file together with its companion .tdms_index
// file, parsing metadata from the (much smaller) index file but reading
// channel data from the data file. This makes opening large files for
// random-access reads fast: the index file holds every segment's lead-in
// and metadata but none of its raw data.
//
// The index file stores the same next-segment-offset and raw-data-offset
// fields the data file does, so chunk positions resolve correctly against
// dataPath even though the index file's own bytes are laid out
// differently (each segment's lead-in and metadata followed directly by
// the next segment's lead-in, with no raw data in between).
func OpenIndexed(dataPath, indexPath string, opts ...ReaderOptions) (*File, error) {
	dataFile, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file %s: %w", dataPath, err)
	}

	dataInfo, err := dataFile.Stat()
	if err != nil {
		_ = dataFile.Close()
		return nil, fmt.Errorf("failed to stat data file %s: %w", dataPath, err)
	}

	indexFile, err := os.Open(indexPath)
	if err != nil {
		_ = dataFile.Close()
		return nil, fmt.Errorf("failed to open index file %s: %w", indexPath, err)
	}
	defer indexFile.Close()

	var o ReaderOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	f := &File{
		Groups:  make(map[string]Group),
		Properties: make(map[string]Property),
		data:    dataFile,
		size:    dataInfo.Size(),
		isIndex: true,
		opts:    o,
		objects: make(map[string]object),
	}

	// Swap in the index reader just for the metadata walk; dataChunk
	// offsets computed along the way are already relative to the data
	// file (see readSegmentMetadata).
	metaReader := f.data
	f.data = indexFile
	err = f.readMetadata()
	f.data = metaReader

	if err != nil {
		_ = dataFile.Close()
		return nil, fmt.Errorf("failed to read index file %s: %w", indexPath, err)
	}

	return f, nil
}

// Close closes the underlying file if the File was created via [Open] or
// [OpenIndexed]. It is a no-op for Files created via [New].
func (f *File) Close() error {
	if file, ok := f.data.(*os.File); ok && file != nil {
		return file.Close()
	}
	return nil
}

// readMetadata reads the metadata for each segment in the file.
func (f *File) readMetadata() error {
	f.segments = make([]segment, 0)
	log := f.opts.logger()

	var prevSegment *segment
	i := 0
	currentOffset := int64(0)

	if _, err := f.data.Seek(0, io.SeekStart); err != nil {
		return ioErrorf(0, err, "failed to seek to beginning of file")
	}

	// Index readers never hold a data segment's raw bytes, so the
	// next-segment-offset field mirrored from the data file (used below to
	// derive chunk positions) does not describe how many bytes remain in
	// this reader. Termination for index readers is based on their own
	// physical length instead.
	var indexByteSize int64
	if f.isIndex {
		end, err := f.data.Seek(0, io.SeekEnd)
		if err != nil {
			return ioErrorf(0, err, "failed to determine index reader size")
		}
		indexByteSize = end
		if _, err := f.data.Seek(0, io.SeekStart); err != nil {
			return ioErrorf(0, err, "failed to seek to beginning of file")
		}
	}

	for {
		lead, err := f.readSegmentLeadIn()
		if err != nil {
			return fmt.Errorf("failed to read segment %d lead in: %w", i, err)
		}

		if lead.containsMetadata && lead.nextSegmentOffset != segmentIncomplete {
			meta, err := f.readSegmentMetadata(currentOffset, lead, prevSegment)
			if err != nil {
				if f.opts.Strict || !errors.Is(err, ErrSegmentUnresolvable) {
					return fmt.Errorf("failed to read segment %d metadata: %w", i, err)
				}

				// Tolerant mode: this segment's metadata can't be resolved
				// against what came before (a corrupt or overwritten file
				// with a gap, not a clean truncation), so drop it and keep
				// reading — the lead-in's own rawDataOffset still tells us
				// exactly where its raw data (or, for an index reader, the
				// next segment's lead-in) begins, regardless of how far
				// the object-table parse got before failing.
				log.Warn("dropping segment with unresolvable metadata", zap.Int("segment", i), zap.Error(err))
				skipTo := currentOffset + int64(leadInSize) + int64(lead.rawDataOffset)
				if _, serr := f.data.Seek(skipTo, io.SeekStart); serr != nil {
					return ioErrorf(currentOffset, serr, "failed to seek past dropped segment %d", i)
				}
			} else {
				prevSegment = &segment{offset: currentOffset, leadIn: lead, metadata: meta}
				f.segments = append(f.segments, *prevSegment)
			}
		}

		currentOffset += int64(lead.nextSegmentOffset) + int64(leadInSize)

		if lead.nextSegmentOffset == segmentIncomplete {
			if f.opts.Strict {
				return newError(KindTruncated, currentOffset, "", "segment lead-in marked incomplete", ErrTruncated)
			}
			log.Debug("segment truncated by incomplete lead-in, stopping", zap.Int("segment", i))
			f.IsIncomplete = true
			break
		}

		if f.isIndex {
			// The read cursor already sits exactly at the next segment's
			// lead-in: index files have no raw data between one segment's
			// metadata and the next segment's lead-in, so nothing needs
			// seeking. Termination compares that physical position against
			// the index reader's own length, not currentOffset (which
			// tracks positions in the data file's address space).
			pos, err := f.data.Seek(0, io.SeekCurrent)
			if err != nil {
				return ioErrorf(currentOffset, err, "failed to read index cursor position")
			}
			if pos >= indexByteSize {
				f.IsIncomplete = false
				break
			}
		} else {
			if currentOffset >= f.size {
				f.IsIncomplete = false
				break
			}
			if _, err := f.data.Seek(currentOffset, io.SeekStart); err != nil {
				return ioErrorf(currentOffset, err, "failed to seek to segment %d", i)
			}
		}

		i++
	}

	return f.resolveObjects()
}

// resolveObjects turns the flat per-segment object table into the public
// Groups/Channels tree, and precomputes each channel's data chunk
// positions so reads don't need to re-derive them.
func (f *File) resolveObjects() error {
	channels := make(map[string]Channel, len(f.objects))

	for _, obj := range f.objects {
		groupName, channelName, err := parsePath(obj.path)
		if err != nil {
			return fmt.Errorf("failed to parse path for object %s: %w", obj.path, err)
		}

		switch {
		case groupName == "":
			maps.Copy(f.Properties, obj.properties)
		case channelName == "":
			f.Groups[groupName] = Group{
				Name:       groupName,
				Properties: obj.properties,
				Channels:   make(map[string]Channel),
				f:          f,
			}
		default:
			chunks := make([]dataChunk, 0, len(f.segments))
			for _, seg := range f.segments {
				if !seg.leadIn.containsRawData {
					continue
				}

				segObj, ok := seg.metadata.objects[obj.path]
				if !ok || segObj.index == nil {
					continue
				}

				for chunkIdx := range seg.metadata.numChunks {
					chunks = append(chunks, dataChunk{
						offset:        segObj.index.offset + int64(chunkIdx*seg.metadata.chunkSize),
						isInterleaved: seg.leadIn.isInterleaved,
						order:         seg.leadIn.byteOrder,
						size:          segObj.index.totalSize,
						numValues:     segObj.index.numValues,
						stride:        segObj.index.stride,
					})
				}
			}

			totalNumValues := uint64(0)
			for _, chunk := range chunks {
				totalNumValues += chunk.numValues
			}

			channels[channelName] = Channel{
				Name:           channelName,
				GroupName:      groupName,
				DataType:       obj.index.dataType,
				Properties:     obj.properties,
				f:              f,
				path:           obj.path,
				dataChunks:     chunks,
				totalNumValues: totalNumValues,
			}
		}
	}

	for channelName, channel := range channels {
		if _, exists := f.Groups[channel.GroupName]; !exists {
			return malformedf(-1, "channel %s sits under non-existent group %s", channelName, channel.GroupName)
		}
		f.Groups[channel.GroupName].Channels[channelName] = channel
	}

	return nil
}

// readSegmentLeadIn reads the 28-byte lead-in for the segment at the
// current read position.
func (f *File) readSegmentLeadIn() (*leadIn, error) {
	leadInBytes, err := readFull(f.data, int(leadInSize))
	if err != nil {
		return nil, ioErrorf(-1, err, "failed to read lead-in")
	}

	magic := leadInBytes[:4]
	wantMagic := tdmsMagicBytes
	if f.isIndex {
		wantMagic = tdmsIndexMagicBytes
	}
	if !bytes.Equal(magic, wantMagic) {
		return nil, malformedf(-1, "bad magic bytes %q", magic)
	}

	lead := leadIn{byteOrder: binary.LittleEndian}

	// The ToC bitmask is always little endian, even though it may itself
	// set the flag marking the rest of the segment as big endian.
	tocMask := binary.LittleEndian.Uint32(leadInBytes[4:])

	lead.containsMetadata = tocMask&tocContainsMetadata != 0
	lead.containsRawData = tocMask&tocContainsRawData != 0
	lead.containsDAQMXRawData = tocMask&tocContainsDAQMXRawData != 0
	lead.isInterleaved = tocMask&tocDataIsInterleaved != 0
	lead.newObjectList = tocMask&tocContainsNewObjectList != 0
	if tocMask&tocIsBigEndian != 0 {
		lead.byteOrder = binary.BigEndian
	}

	version := lead.byteOrder.Uint32(leadInBytes[8:])
	if version != 4712 && version != 4713 {
		return nil, newError(KindUnsupported, -1, "", fmt.Sprintf("unsupported version %d", version), ErrUnsupportedVersion)
	}

	lead.nextSegmentOffset = lead.byteOrder.Uint64(leadInBytes[12:])
	lead.rawDataOffset = lead.byteOrder.Uint64(leadInBytes[20:])

	return &lead, nil
}

func (f *File) readSegmentMetadata(segmentOffset int64, lead *leadIn, prevSegment *segment) (*metadata, error) {
	numObjects, err := readUint32(f.data, lead.byteOrder)
	if err != nil {
		return nil, ioErrorf(segmentOffset, err, "failed to read object count")
	}

	m := metadata{
		objects:     make(map[string]object, numObjects),
		objectOrder: make([]string, 0, numObjects),
	}

	if !lead.newObjectList {
		if prevSegment == nil {
			return nil, unresolvedPriorf(segmentOffset, "lead-in lacks new object list flag but there is no prior segment")
		}
		for _, path := range prevSegment.metadata.objectOrder {
			m.objectOrder = append(m.objectOrder, path)
			m.objects[path] = prevSegment.metadata.objects[path]
		}
	}

	for i := range int(numObjects) {
		obj, err := f.readObject(lead, prevSegment)
		if err != nil {
			return nil, fmt.Errorf("error reading object %d: %w", i, err)
		}

		if existing, ok := m.objects[obj.path]; ok {
			if obj.index != nil {
				existing.index = obj.index
			}
			maps.Copy(existing.properties, obj.properties)
			m.objects[obj.path] = existing
		} else {
			m.objectOrder = append(m.objectOrder, obj.path)
			m.objects[obj.path] = *obj
		}

		if existing, ok := f.objects[obj.path]; ok {
			if obj.index != nil {
				existing.index = obj.index
			}
			maps.Copy(existing.properties, obj.properties)
			f.objects[obj.path] = existing
		} else {
			root := *obj
			root.properties = make(map[string]Property, len(obj.properties))
			maps.Copy(root.properties, obj.properties)
			f.objects[obj.path] = root
		}
	}

	m.chunkSize = 0
	for _, obj := range m.objects {
		if obj.index != nil {
			m.chunkSize += obj.index.totalSize
		}
	}

	totalRawDataSize := lead.nextSegmentOffset - lead.rawDataOffset
	if lead.nextSegmentOffset == segmentIncomplete {
		rawDataAbsolutePosition := uint64(segmentOffset) + leadInSize + lead.rawDataOffset
		totalRawDataSize = uint64(f.size) - rawDataAbsolutePosition
	}

	if m.chunkSize > 0 {
		m.numChunks = totalRawDataSize / m.chunkSize
	}

	// Non-interleaved: each object's values sit in their own contiguous
	// block per chunk, one block after another — offset walks forward by
	// whole blocks, and stride (the gap between the end of one chunk's
	// block and the start of the next) is never consulted by the stream
	// reader outside interleaved mode.
	//
	// Interleaved: every chunk is row-major across objects — one value
	// from each object in turn, repeated per row — so an object's offset
	// is its column position within the row (the sum of the widths of
	// the objects before it) and its stride is the rest of the row width
	// it must skip to reach the same column in the next row.
	rowWidth := uint64(0)
	if lead.isInterleaved {
		for _, obj := range m.objects {
			if obj.index != nil && obj.index.numValues > 0 {
				rowWidth = m.chunkSize / obj.index.numValues
				break
			}
		}
	}

	dataOffset := segmentOffset + int64(leadInSize+lead.rawDataOffset)
	columnOffset := int64(0)
	for _, path := range m.objectOrder {
		obj := m.objects[path]
		if obj.index == nil || obj.index.totalSize == 0 {
			continue
		}

		// The index may be shared with the previous segment (inherited or
		// matches-previous); give this segment its own copy before setting
		// its offset and stride.
		idx := *obj.index
		obj.index = &idx
		m.objects[path] = obj

		if lead.isInterleaved {
			ownWidth := obj.index.totalSize / obj.index.numValues
			obj.index.offset = dataOffset + columnOffset
			obj.index.stride = int64(rowWidth - ownWidth)
			columnOffset += int64(ownWidth)
		} else {
			obj.index.offset = dataOffset
			dataOffset += int64(obj.index.totalSize)
			obj.index.stride = int64(m.chunkSize - obj.index.totalSize)
		}
	}

	return &m, nil
}

func (f *File) readObject(lead *leadIn, prevSegment *segment) (*object, error) {
	var obj object
	var err error

	obj.path, err = readString(f.data, lead.byteOrder)
	if err != nil {
		return nil, ioErrorf(-1, err, "failed to read object path")
	}

	rawDataIndexHeader, err := readUint32(f.data, lead.byteOrder)
	if err != nil {
		return nil, ioErrorf(-1, err, "failed to read raw data index header")
	}

	rawDataIndexPresent := false

	switch rawDataIndexHeader {
	case rawIndexHeaderNoRawData:
		obj.index = nil
	case rawIndexHeaderMatchesPreviousValue:
		if prevSegment == nil {
			return nil, unresolvedPriorf(-1, "raw data index matches previous value but there is no prior segment").WithPath(obj.path)
		}
		existing, ok := prevSegment.metadata.objects[obj.path]
		if !ok {
			return nil, unresolvedPriorf(-1, "raw data index matches previous value but no prior object found").WithPath(obj.path)
		}
		obj.index = existing.index
	case rawIndexHeaderFormatChangingScaler:
		obj.index = &objectIndex{scalerType: daqmxScalerTypeFormatChanging}
		rawDataIndexPresent = true
	case rawIndexHeaderDigitalLineScaler:
		obj.index = &objectIndex{scalerType: daqmxScalerTypeDigitalLine}
		rawDataIndexPresent = true
	default:
		// Any other value is just the byte length of the raw data index
		// that follows (20 for fixed-width types and 28 for strings,
		// header included).
		obj.index = &objectIndex{scalerType: daqmxScalerTypeNone}
		rawDataIndexPresent = true
	}

	if rawDataIndexPresent {
		indexBytes, err := readFull(f.data, 16)
		if err != nil {
			return nil, ioErrorf(-1, err, "failed to read raw data index").WithPath(obj.path)
		}

		obj.index.dataType = DataType(lead.byteOrder.Uint32(indexBytes))

		if obj.index.dataType == DataTypeString && lead.isInterleaved {
			return nil, malformedf(-1, "interleaved segments cannot contain variable-width data types").WithPath(obj.path)
		}

		dimension := lead.byteOrder.Uint32(indexBytes[4:8])
		if dimension != 1 {
			return nil, malformedf(-1, "raw data index dimension must be 1, got %d", dimension).WithPath(obj.path)
		}

		obj.index.numValues = lead.byteOrder.Uint64(indexBytes[8:16])

		if obj.index.scalerType == daqmxScalerTypeNone {
			if obj.index.dataType == DataTypeString {
				obj.index.totalSize, err = readUint64(f.data, lead.byteOrder)
				if err != nil {
					return nil, ioErrorf(-1, err, "failed to read string total size").WithPath(obj.path)
				}
			} else {
				width, ok := obj.index.dataType.fixedWidth()
				if !ok {
					return nil, unsupportedf(-1, "data type %s has no fixed width", obj.index.dataType).WithPath(obj.path)
				}
				obj.index.totalSize = obj.index.numValues * uint64(width)
			}
		} else {
			if err := f.readDAQmxScalers(obj.index, lead); err != nil {
				return nil, fmt.Errorf("failed to read DAQmx scaler vector: %w", err)
			}
		}
	}

	numProps, err := readUint32(f.data, lead.byteOrder)
	if err != nil {
		return nil, ioErrorf(-1, err, "failed to read property count").WithPath(obj.path)
	}

	obj.properties = make(map[string]Property, numProps)
	for range numProps {
		name, err := readString(f.data, lead.byteOrder)
		if err != nil {
			return nil, ioErrorf(-1, err, "failed to read property name").WithPath(obj.path)
		}

		typeCode, err := readUint32(f.data, lead.byteOrder)
		if err != nil {
			return nil, ioErrorf(-1, err, "failed to read property type").WithPath(obj.path)
		}

		dt := DataType(typeCode)
		value, err := readPropertyValue(f.data, lead.byteOrder, dt)
		if err != nil {
			return nil, fmt.Errorf("failed to read property %q value: %w", name, err)
		}

		obj.properties[name] = Property{Name: name, TypeCode: dt, Value: value}
	}

	return &obj, nil
}
