package tdms

import "encoding/binary"

// Table-of-contents bits, packed into the second lead-in field. The mask
// itself is always read/written little endian, even when it sets the
// big-endian flag for the rest of the segment.
const (
	tocContainsMetadata      uint32 = 1 << 1
	tocContainsNewObjectList uint32 = 1 << 2
	tocContainsRawData       uint32 = 1 << 3
	tocDataIsInterleaved     uint32 = 1 << 5
	tocIsBigEndian           uint32 = 1 << 6
	tocContainsDAQMXRawData  uint32 = 1 << 7
)

// Raw data index header sentinels. Any other value is the literal byte
// length of the raw data index that follows (in the non-DAQmx case, 20
// for fixed-width types and 28 for strings, including the header itself).
const (
	rawIndexHeaderMatchesPreviousValue uint32 = 0x00_00_00_00
	rawIndexHeaderNoRawData            uint32 = 0xff_ff_ff_ff
	rawIndexHeaderFormatChangingScaler uint32 = 0x00_00_12_69

	// The NI docs say this value is 0x00_00_13_6a; experience with real
	// files suggests that's a typo and this is the value actually used.
	rawIndexHeaderDigitalLineScaler uint32 = 0x00_00_12_6a
)

// segmentIncomplete marks a lead-in's next-segment-offset field as not yet
// known, written before the segment's data so that a crash mid-write still
// leaves a lead-in a reader can make sense of; see writer.go.
const segmentIncomplete uint64 = 0xff_ff_ff_ff_ff_ff_ff_ff

const (
	leadInSize uint64 = 28

	// scalerSize is the byte length of one DAQmx raw buffer index entry:
	// data type (4) + raw buffer index (4) + raw byte offset within
	// stride (4) + sample format bitmap (4) + scale ID (4).
	scalerSize uint32 = 20
)

var (
	tdmsMagicBytes      = []byte{'T', 'D', 'S', 'm'}
	tdmsIndexMagicBytes = []byte{'T', 'D', 'S', 'h'}
)

// leadIn is the decoded form of a segment's 28-byte lead-in.
type leadIn struct {
	containsMetadata     bool
	containsRawData      bool
	containsDAQMXRawData bool
	isInterleaved        bool
	byteOrder            binary.ByteOrder
	newObjectList        bool
	nextSegmentOffset    uint64
	rawDataOffset        uint64
}

// segment is a fully parsed segment: its absolute file offset, lead-in, and
// resolved metadata (object list plus chunking geometry).
type segment struct {
	offset   int64
	leadIn   *leadIn
	metadata *metadata
}

// metadata is a segment's resolved object list and chunk geometry.
type metadata struct {
	objects map[string]object

	// objectOrder preserves declaration order: raw data for each chunk
	// appears in this same order.
	objectOrder []string

	// A segment can carry more than one chunk of identically-shaped data
	// stacked back to back when the lead-in/metadata is unchanged between
	// writes.
	numChunks uint64
	chunkSize uint64
}

type daqmxScalerType int

const (
	daqmxScalerTypeNone daqmxScalerType = iota
	daqmxScalerTypeFormatChanging
	daqmxScalerTypeDigitalLine
)

// object is a single TDMS object (the root, a group, or a channel) as
// declared within one segment's metadata.
type object struct {
	path       string
	index      *objectIndex // nil if this object carries no raw data in this segment.
	properties map[string]Property
}

// objectIndex describes a channel's raw-data layout for a single segment.
type objectIndex struct {
	scalerType daqmxScalerType
	dataType   DataType
	numValues  uint64

	// totalSize is the byte length of one chunk's worth of this object's
	// raw data. For variable-width types (strings) this comes straight
	// from the file; for fixed-width types it's numValues*dataType.Size().
	totalSize uint64

	scalers []daqmxScaler // DAQmx raw data only.
	widths  []uint32      // DAQmx raw data only.

	offset int64 // absolute file offset of this object's first chunk.
	stride int64 // bytes skipped after one of this object's values (interleaved) or blocks (not interleaved) before its next.
}

// dataChunk is a single raw-data chunk for one object, flattened out of its
// segment/metadata context so that reading a channel's data is a simple
// walk over a slice instead of a re-derivation from segments each time.
type dataChunk struct {
	offset        int64 // absolute from the start of the file.
	isInterleaved bool
	order         binary.ByteOrder
	size          uint64
	numValues     uint64
	stride        int64
}

type daqmxScaler struct {
	dataType DataType

	rawBufferIndex            uint32
	rawByteOffsetWithinStride uint32
	sampleFormatBitmap        uint32
	scaleID                   uint32
}
