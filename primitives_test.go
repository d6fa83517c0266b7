package tdms

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUintReadWriteRoundTrip(t *testing.T) {
	orders := []binary.ByteOrder{binary.LittleEndian, binary.BigEndian}

	for _, order := range orders {
		var buf bytes.Buffer
		require.NoError(t, writeUint16(&buf, order, 0xBEEF))
		require.NoError(t, writeUint32(&buf, order, 0xDEADBEEF))
		require.NoError(t, writeUint64(&buf, order, 0x0123456789ABCDEF))

		got16, err := readUint16(&buf, order)
		require.NoError(t, err)
		assert.Equal(t, uint16(0xBEEF), got16)

		got32, err := readUint32(&buf, order)
		require.NoError(t, err)
		assert.Equal(t, uint32(0xDEADBEEF), got32)

		got64, err := readUint64(&buf, order)
		require.NoError(t, err)
		assert.Equal(t, uint64(0x0123456789ABCDEF), got64)
	}
}

func TestStringReadWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeString(&buf, binary.LittleEndian, "hello, tdms"))

	got, err := readString(&buf, binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, "hello, tdms", got)
}

func TestStringLenientUTF8(t *testing.T) {
	got := decodeUTF8Lenient([]byte{0xff, 0xfe, 'o', 'k'})
	assert.Contains(t, got, "ok")
}

func TestEncodeInterpretRoundTrip(t *testing.T) {
	order := binary.LittleEndian

	assert.Equal(t, int8(-12), interpretInt8(encodeInt8(nil, order, -12), order))
	assert.Equal(t, int16(-1234), interpretInt16(encodeInt16(nil, order, -1234), order))
	assert.Equal(t, int32(-123456), interpretInt32(encodeInt32(nil, order, -123456), order))
	assert.Equal(t, int64(-123456789), interpretInt64(encodeInt64(nil, order, -123456789), order))
	assert.Equal(t, uint8(200), interpretUint8(encodeUint8(nil, order, 200), order))
	assert.Equal(t, float32(3.25), interpretFloat32(encodeFloat32(nil, order, 3.25), order))
	assert.Equal(t, 6.02214076e23, interpretFloat64(encodeFloat64(nil, order, 6.02214076e23), order))
	assert.Equal(t, true, interpretBool(encodeBool(nil, order, true), order))
	assert.Equal(t, false, interpretBool(encodeBool(nil, order, false), order))
	assert.Equal(t, complex64(1+2i), interpretComplex64(encodeComplex64(nil, order, 1+2i), order))
	assert.Equal(t, complex128(3-4i), interpretComplex128(encodeComplex128(nil, order, 3-4i), order))

	ts := Timestamp{Seconds: 123456789, Fractions: 0xABCDEF0102030405}
	assert.Equal(t, ts, interpretTimestamp(encodeTimestamp(nil, order, ts), order))
}

func TestFloat128EncodeDecodeRoundTrip(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		values := []*big.Float{
			big.NewFloat(0),
			big.NewFloat(1),
			big.NewFloat(-1),
			big.NewFloat(3.14159265358979),
			new(big.Float).SetPrec(113).Quo(big.NewFloat(1), big.NewFloat(3)),
		}

		for _, v := range values {
			f := NewFloat128(v)
			decoded := decodeFloat128(encodeFloat128(f, order), order)

			got, _ := decoded.AsBigFloat().Float64()
			want, _ := v.Float64()
			assert.InDeltaf(t, want, got, 1e-12, "order=%v value=%v", order, v)
		}
	}
}

func TestFloat128NaN(t *testing.T) {
	var f Float128
	f.SetNaN()

	encoded := encodeFloat128(f, binary.LittleEndian)
	decoded := decodeFloat128(encoded, binary.LittleEndian)
	assert.True(t, decoded.IsNaN())
}

func TestTimestampRoundTrip(t *testing.T) {
	want := time.Date(2024, 3, 15, 12, 30, 45, 500_000_000, time.UTC)
	ts := NewTimestamp(want)
	got := ts.AsTime()
	assert.WithinDuration(t, want, got, time.Microsecond)
}

func TestPropertyValueReadWriteRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		dt   DataType
		val  any
	}{
		{"int8", DataTypeInt8, int8(-5)},
		{"uint32", DataTypeUint32, uint32(99999)},
		{"float64", DataTypeFloat64, 2.71828},
		{"string", DataTypeString, "a property value"},
		{"bool", DataTypeBool, true},
		{"timestamp", DataTypeTimestamp, Timestamp{Seconds: 42, Fractions: 7}},
		{"complex128", DataTypeComplex128, complex128(1 + 1i)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writePropertyValue(&buf, binary.LittleEndian, tt.dt, tt.val))

			got, err := readPropertyValue(&buf, binary.LittleEndian, tt.dt)
			require.NoError(t, err)
			assert.Equal(t, tt.val, got)
		})
	}
}
