package tdms

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBuffer is a minimal in-memory io.ReadWriteSeeker, standing in for an
// *os.File so round-trip tests don't need a real filesystem.
type memBuffer struct {
	buf []byte
	pos int64
}

func (m *memBuffer) Write(p []byte) (int, error) {
	end := int(m.pos) + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	n := copy(m.buf[m.pos:end], p)
	m.pos += int64(n)
	return n, nil
}

func (m *memBuffer) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.pos + offset
	case io.SeekEnd:
		newPos = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("memBuffer: invalid whence")
	}
	if newPos < 0 {
		return 0, errors.New("memBuffer: negative position")
	}
	m.pos = newPos
	return newPos, nil
}

// TestWriterReaderRoundTrip writes a file with two groups, several channels
// of different types, and properties at every level across more than one
// segment, then reads it back and checks every value survives.
func TestWriterReaderRoundTrip(t *testing.T) {
	data := &memBuffer{}
	index := &memBuffer{}

	opts := DefaultWriterOptions()
	opts.CreateIndexFile = true

	w, err := NewWriter(data, index, opts)
	require.NoError(t, err)

	require.NoError(t, w.EnsureChannel("measurements", "voltage", DataTypeFloat64))
	require.NoError(t, w.EnsureChannel("measurements", "label", DataTypeString))
	require.NoError(t, w.EnsureChannel("events", "count", DataTypeInt32))

	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, w.SetProperty("/", Property{Name: "Author", TypeCode: DataTypeString, Value: "tester"}))
	require.NoError(t, w.SetProperty("/'measurements'", Property{Name: "CreatedAt", TypeCode: DataTypeTimestamp, Value: NewTimestamp(createdAt)}))

	voltageProp, err := NewProperty("CalibrationFactor", 1.5)
	require.NoError(t, err)
	require.NoError(t, w.SetProperty("/'measurements'/'voltage'", voltageProp))

	require.NoError(t, w.AppendValues("measurements", "voltage", []float64{1.0, 2.0, 3.0}))
	require.NoError(t, w.AppendStrings("measurements", "label", []string{"a", "bb", "ccc"}))
	require.NoError(t, w.AppendValues("events", "count", []int32{10, 20, 30}))
	require.NoError(t, w.WriteSegment())

	// A second batch of appends before the next WriteSegment call.
	require.NoError(t, w.AppendValues("measurements", "voltage", []float64{4.0, 5.0, 6.0}))
	require.NoError(t, w.AppendStrings("measurements", "label", []string{"d", "ee", "fff"}))
	require.NoError(t, w.AppendValues("events", "count", []int32{40, 50, 60}))
	require.NoError(t, w.WriteSegment())

	require.NoError(t, w.Close())

	file, err := New(data, false, int64(len(data.buf)))
	require.NoError(t, err)
	assert.False(t, file.IsIncomplete)

	author, err := file.Properties["Author"].AsString()
	require.NoError(t, err)
	assert.Equal(t, "tester", author)

	group, ok := file.Groups["measurements"]
	require.True(t, ok)

	createdAtGot, err := group.Properties["CreatedAt"].AsTime()
	require.NoError(t, err)
	assert.WithinDuration(t, createdAt, createdAtGot, time.Microsecond)

	voltage, ok := group.Channels["voltage"]
	require.True(t, ok)
	assert.Equal(t, DataTypeFloat64, voltage.DataType)
	assert.Equal(t, uint64(6), voltage.NumValues())

	calFactor, err := voltage.Properties["CalibrationFactor"].AsFloat64()
	require.NoError(t, err)
	assert.Equal(t, 1.5, calFactor)

	gotVoltages, err := voltage.ReadDataFloat64All()
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{1, 2, 3, 4, 5, 6}, gotVoltages); diff != "" {
		t.Errorf("voltage values mismatch (-want +got):\n%s", diff)
	}

	label, ok := group.Channels["label"]
	require.True(t, ok)
	gotLabels, err := label.ReadDataStringAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "bb", "ccc", "d", "ee", "fff"}, gotLabels)

	eventsGroup, ok := file.Groups["events"]
	require.True(t, ok)
	count, ok := eventsGroup.Channels["count"]
	require.True(t, ok)
	gotCounts, err := count.ReadDataInt32All()
	require.NoError(t, err)
	assert.Equal(t, []int32{10, 20, 30, 40, 50, 60}, gotCounts)

	// The mirrored index file should hold metadata for the same objects,
	// without the data file's raw payload inflating its size.
	assert.Less(t, len(index.buf), len(data.buf))

	indexFile, err := New(index, true, int64(len(index.buf)))
	require.NoError(t, err)
	_, ok = indexFile.Groups["measurements"].Channels["voltage"]
	assert.True(t, ok)
}

// TestWriterSingleValueTypes checks every supported fixed-width type appends
// and reads back correctly across a single segment.
func TestWriterSingleValueTypes(t *testing.T) {
	data := &memBuffer{}
	w, err := NewWriter(data, nil, DefaultWriterOptions())
	require.NoError(t, err)

	require.NoError(t, w.EnsureChannel("g", "i8", DataTypeInt8))
	require.NoError(t, w.EnsureChannel("g", "u64", DataTypeUint64))
	require.NoError(t, w.EnsureChannel("g", "b", DataTypeBool))
	require.NoError(t, w.EnsureChannel("g", "c", DataTypeComplex128))

	require.NoError(t, w.AppendValues("g", "i8", []int8{-1, -2, -3}))
	require.NoError(t, w.AppendValues("g", "u64", []uint64{1, 2, 3}))
	require.NoError(t, w.AppendValues("g", "b", []bool{true, false, true}))
	require.NoError(t, w.AppendValues("g", "c", []complex128{1 + 2i, 3 + 4i, 5 + 6i}))
	require.NoError(t, w.Close())

	file, err := New(data, false, int64(len(data.buf)))
	require.NoError(t, err)

	group := file.Groups["g"]

	i8Ch := group.Channels["i8"]
	i8, err := i8Ch.ReadDataInt8All()
	require.NoError(t, err)
	assert.Equal(t, []int8{-1, -2, -3}, i8)

	u64Ch := group.Channels["u64"]
	u64, err := u64Ch.ReadDataUint64All()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, u64)

	bCh := group.Channels["b"]
	b, err := bCh.ReadDataBoolAll()
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, b)

	cCh := group.Channels["c"]
	c, err := cCh.ReadDataComplex128All()
	require.NoError(t, err)
	assert.Equal(t, []complex128{1 + 2i, 3 + 4i, 5 + 6i}, c)
}

// TestWriterInterleaved checks that fixed-width channels written with
// Interleaved set produce the row-major byte layout a reader expects.
func TestWriterInterleaved(t *testing.T) {
	data := &memBuffer{}
	opts := DefaultWriterOptions()
	opts.Interleaved = true

	w, err := NewWriter(data, nil, opts)
	require.NoError(t, err)

	require.NoError(t, w.EnsureChannel("g", "a", DataTypeInt32))
	require.NoError(t, w.EnsureChannel("g", "b", DataTypeInt32))
	require.NoError(t, w.AppendValues("g", "a", []int32{1, 2, 3}))
	require.NoError(t, w.AppendValues("g", "b", []int32{10, 20, 30}))
	require.NoError(t, w.Close())

	file, err := New(data, false, int64(len(data.buf)))
	require.NoError(t, err)

	group := file.Groups["g"]
	aCh := group.Channels["a"]
	a, err := aCh.ReadDataInt32All()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3}, a)

	bCh := group.Channels["b"]
	b, err := bCh.ReadDataInt32All()
	require.NoError(t, err)
	assert.Equal(t, []int32{10, 20, 30}, b)
}

// TestWriterFullSegmentCompaction writes two interleaved segments with the
// same two channels and no property changes between them — interleaved mode
// is never raw-append-eligible, so both writes go through writeFullSegment.
// The second segment must still declare its object list unchanged and reuse
// each channel's raw data index rather than redeclaring a fresh one.
func TestWriterFullSegmentCompaction(t *testing.T) {
	data := &memBuffer{}
	opts := DefaultWriterOptions()
	opts.Interleaved = true

	w, err := NewWriter(data, nil, opts)
	require.NoError(t, err)

	require.NoError(t, w.EnsureChannel("g", "a", DataTypeInt32))
	require.NoError(t, w.EnsureChannel("g", "b", DataTypeInt32))
	require.NoError(t, w.AppendValues("g", "a", []int32{1, 2, 3}))
	require.NoError(t, w.AppendValues("g", "b", []int32{10, 20, 30}))
	require.NoError(t, w.WriteSegment())

	secondLeadIn := int64(len(data.buf))

	require.NoError(t, w.AppendValues("g", "a", []int32{4, 5, 6}))
	require.NoError(t, w.AppendValues("g", "b", []int32{40, 50, 60}))
	require.NoError(t, w.WriteSegment())
	require.NoError(t, w.Close())

	tocMask := w.order.Uint32(data.buf[secondLeadIn+4 : secondLeadIn+8])
	assert.Zero(t, tocMask&tocContainsNewObjectList, "second segment redeclared its object list despite an unchanged channel set")

	// The object list is group "g" (no raw data of its own) followed by
	// channels "a" and "b" — every one of the three should have its
	// properties compacted away, and the two channels should carry the
	// matches-previous sentinel instead of a fresh raw data index.
	metaStart := secondLeadIn + int64(leadInSize)
	objCount := w.order.Uint32(data.buf[metaStart : metaStart+4])
	require.Equal(t, uint32(3), objCount)

	wantHeaders := []uint32{rawIndexHeaderNoRawData, rawIndexHeaderMatchesPreviousValue, rawIndexHeaderMatchesPreviousValue}
	off := metaStart + 4
	for _, want := range wantHeaders {
		pathLen := w.order.Uint32(data.buf[off : off+4])
		off += 4 + int64(pathLen)
		header := w.order.Uint32(data.buf[off : off+4])
		assert.Equal(t, want, header)
		off += 4
		propCount := w.order.Uint32(data.buf[off : off+4])
		assert.Zero(t, propCount, "unchanged object should compact its property list to zero")
		off += 4
	}

	file, err := New(data, false, int64(len(data.buf)))
	require.NoError(t, err)
	aCh := file.Groups["g"].Channels["a"]
	a, err := aCh.ReadDataInt32All()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, a)

	bCh := file.Groups["g"].Channels["b"]
	b, err := bCh.ReadDataInt32All()
	require.NoError(t, err)
	assert.Equal(t, []int32{10, 20, 30, 40, 50, 60}, b)
}

// TestRawAppendFastPathWithIndexFile checks that appendRawDataOnly growing
// the data file's next-segment-offset across a raw-data-only append keeps
// the mirrored index file's own next-segment-offset in lockstep, so
// OpenIndexed-style chunk arithmetic derived from the index alone still
// lands on the right byte ranges in the data file.
func TestRawAppendFastPathWithIndexFile(t *testing.T) {
	data := &memBuffer{}
	index := &memBuffer{}

	opts := DefaultWriterOptions()
	opts.CreateIndexFile = true
	w, err := NewWriter(data, index, opts)
	require.NoError(t, err)

	require.NoError(t, w.EnsureChannel("g", "a", DataTypeInt32))
	require.NoError(t, w.AppendValues("g", "a", []int32{1, 2}))
	require.NoError(t, w.WriteSegment())

	require.NoError(t, w.AppendValues("g", "a", []int32{3, 4, 5, 6}))
	require.True(t, w.rawAppendEligible())
	require.NoError(t, w.WriteSegment())
	require.NoError(t, w.Close())

	file, err := New(data, false, int64(len(data.buf)))
	require.NoError(t, err)
	aCh := file.Groups["g"].Channels["a"]
	a, err := aCh.ReadDataInt32All()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, a)

	indexFile, err := New(index, true, int64(len(index.buf)))
	require.NoError(t, err)
	_, ok := indexFile.Groups["g"].Channels["a"]
	require.True(t, ok)
}

// TestReaderTolerantVsStrictTruncation simulates a file left behind by a
// writer that crashed between writing a segment's lead-in (with the
// INCOMPLETE sentinel) and patching it, which is exactly the window
// writer.go's crash-safety contract is meant to survive a read of.
func TestReaderTolerantVsStrictTruncation(t *testing.T) {
	data := &memBuffer{}
	w := &Writer{opts: DefaultWriterOptions(), order: DefaultWriterOptions().byteOrder()}

	var metadata []byte
	metadata = appendUint32(metadata, w.order, 0) // zero objects.

	require.NoError(t, w.writeLeadIn(data, false, tocContainsMetadata|tocContainsNewObjectList, segmentIncomplete, uint64(len(metadata))))
	_, err := data.Write(metadata)
	require.NoError(t, err)

	tolerant, err := New(data, false, int64(len(data.buf)))
	require.NoError(t, err)
	assert.True(t, tolerant.IsIncomplete)

	_, err = New(data, false, int64(len(data.buf)), ReaderOptions{Strict: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncated)
}

// TestReaderTolerantVsStrictUnresolvableSegment simulates a file whose first
// segment claims to extend a previous object list (NewObjectList unset)
// when there is no previous segment to extend — a corrupt or
// overwritten file, as distinct from the clean-truncation case above.
// Tolerant mode must drop just that segment and keep reading; strict mode
// must reject the whole file.
func TestReaderTolerantVsStrictUnresolvableSegment(t *testing.T) {
	data := &memBuffer{}
	w := &Writer{opts: DefaultWriterOptions(), order: DefaultWriterOptions().byteOrder()}

	// Segment A: malformed — NewObjectList unset with no prior segment.
	var metadataA []byte
	metadataA = appendUint32(metadataA, w.order, 0) // zero objects.
	require.NoError(t, w.writeLeadIn(data, false, tocContainsMetadata, uint64(len(metadataA)), uint64(len(metadataA))))
	_, err := data.Write(metadataA)
	require.NoError(t, err)

	// Segment B: well-formed, with its own fresh object list.
	var metadataB []byte
	metadataB = appendUint32(metadataB, w.order, 0) // zero objects.
	require.NoError(t, w.writeLeadIn(data, false, tocContainsMetadata|tocContainsNewObjectList, uint64(len(metadataB)), uint64(len(metadataB))))
	_, err = data.Write(metadataB)
	require.NoError(t, err)

	tolerant, err := New(data, false, int64(len(data.buf)))
	require.NoError(t, err)
	assert.False(t, tolerant.IsIncomplete)
	assert.Len(t, tolerant.segments, 1) // segment A dropped, segment B kept.

	_, err = New(data, false, int64(len(data.buf)), ReaderOptions{Strict: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSegmentUnresolvable)
}
