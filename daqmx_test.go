package tdms

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDAQmxScalers(t *testing.T) {
	order := binary.LittleEndian

	var raw bytes.Buffer
	require.NoError(t, writeUint32(&raw, order, 2)) // numScalers

	// Scaler 0: Int16 at byte offset 0 of a 4-byte stride, scale ID 7.
	raw.Write(appendUint32(nil, order, uint32(DataTypeInt16)))
	raw.Write(appendUint32(nil, order, 0)) // rawBufferIndex
	raw.Write(appendUint32(nil, order, 0)) // rawByteOffsetWithinStride
	raw.Write(appendUint32(nil, order, 0)) // sampleFormatBitmap
	raw.Write(appendUint32(nil, order, 7)) // scaleID

	// Scaler 1: Int16 at byte offset 2 of the same stride, scale ID 8.
	raw.Write(appendUint32(nil, order, uint32(DataTypeInt16)))
	raw.Write(appendUint32(nil, order, 0))
	raw.Write(appendUint32(nil, order, 2))
	raw.Write(appendUint32(nil, order, 0))
	raw.Write(appendUint32(nil, order, 8))

	require.NoError(t, writeUint32(&raw, order, 1)) // numWidths
	raw.Write(appendUint32(nil, order, 4))          // one 4-byte raw buffer.

	f := &File{data: bytes.NewReader(raw.Bytes())}
	lead := &leadIn{byteOrder: order}
	idx := &objectIndex{numValues: 3}

	require.NoError(t, f.readDAQmxScalers(idx, lead))

	require.Len(t, idx.scalers, 2)
	assert.Equal(t, uint32(7), idx.scalers[0].scaleID)
	assert.Equal(t, uint32(8), idx.scalers[1].scaleID)
	assert.Equal(t, []uint32{4}, idx.widths)
	assert.Equal(t, uint64(3*4), idx.totalSize) // numValues * sum(widths)
}

func TestExtractDAQmxScalerValue(t *testing.T) {
	order := binary.LittleEndian

	// A 4-byte stride holding one int16 value at offset 0 followed by
	// 2 bytes belonging to some other scaler.
	row := appendUint16(nil, order, 1234)
	row = appendUint16(row, order, 0)

	sc := daqmxScaler{dataType: DataTypeInt16, rawByteOffsetWithinStride: 0}
	assert.Equal(t, int64(1234), extractDAQmxScalerValue(row, sc, order))

	row32 := appendUint32(nil, order, 0xFFFFFFFF)
	sc32 := daqmxScaler{dataType: DataTypeUint32, rawByteOffsetWithinStride: 0}
	assert.Equal(t, int64(0xFFFFFFFF), extractDAQmxScalerValue(row32, sc32, order))

	// Offset past the end of the row is treated as zero rather than
	// panicking: callers may see narrower rows than a malformed scaler
	// claims.
	scOOB := daqmxScaler{dataType: DataTypeInt8, rawByteOffsetWithinStride: 99}
	assert.Equal(t, int64(0), extractDAQmxScalerValue([]byte{1, 2, 3}, scOOB, order))
}

// TestExtractDAQmxScalerValueFloat covers a SingleFloat-scaled DAQmx
// channel, matching npTDMS-style files where a scaler's extracted value is
// an IEEE-754 float rather than an integer.
func TestExtractDAQmxScalerValueFloat(t *testing.T) {
	order := binary.LittleEndian

	row32 := encodeFloat32(nil, order, 1.5)
	sc32 := daqmxScaler{dataType: DataTypeFloat32, rawByteOffsetWithinStride: 0}
	v32 := DAQmxValue{DataType: DataTypeFloat32, Value: extractDAQmxScalerValue(row32, sc32, order)}
	f32, err := v32.AsFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f32)

	row64 := encodeFloat64(nil, order, 2.5)
	sc64 := daqmxScaler{dataType: DataTypeFloat64, rawByteOffsetWithinStride: 0}
	v64 := DAQmxValue{DataType: DataTypeFloat64, Value: extractDAQmxScalerValue(row64, sc64, order)}
	f64, err := v64.AsFloat64()
	require.NoError(t, err)
	assert.Equal(t, 2.5, f64)

	_, err = v64.AsFloat32()
	assert.ErrorIs(t, err, ErrIncorrectType)
}
