package tdms

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriterValidatesOptions(t *testing.T) {
	data := &memBuffer{}

	_, err := NewWriter(data, nil, WriterOptions{Version: 9999})
	require.Error(t, err)

	_, err = NewWriter(data, nil, WriterOptions{CreateIndexFile: true})
	require.Error(t, err)

	w, err := NewWriter(data, nil, WriterOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint32(4713), w.opts.Version)
}

func TestEnsureChannelTypeConflict(t *testing.T) {
	w, err := NewWriter(&memBuffer{}, nil, DefaultWriterOptions())
	require.NoError(t, err)

	require.NoError(t, w.EnsureChannel("g", "ch", DataTypeFloat64))
	require.NoError(t, w.EnsureChannel("g", "ch", DataTypeFloat64)) // repeat is a no-op.

	err = w.EnsureChannel("g", "ch", DataTypeInt32)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestEnsureChannelRejectsUnsupportedType(t *testing.T) {
	w, err := NewWriter(&memBuffer{}, nil, DefaultWriterOptions())
	require.NoError(t, err)

	err = w.EnsureChannel("g", "ch", DataTypeFixedPoint)
	require.Error(t, err)
}

func TestAppendValuesTypeMismatch(t *testing.T) {
	w, err := NewWriter(&memBuffer{}, nil, DefaultWriterOptions())
	require.NoError(t, err)
	require.NoError(t, w.EnsureChannel("g", "ch", DataTypeFloat64))

	err = w.AppendValues("g", "ch", []int32{1, 2, 3})
	require.Error(t, err)
	var tdmsErr *Error
	require.True(t, errors.As(err, &tdmsErr))
	assert.Equal(t, KindTypeConflict, tdmsErr.Kind)

	// The buffer must be left untouched by the rejected append.
	ch := w.channels["/'g'/'ch'"]
	assert.Equal(t, 0, ch.pending.Len())
	assert.Equal(t, uint64(0), ch.pendingNumValues)
}

func TestAppendStringsOnNonStringChannel(t *testing.T) {
	w, err := NewWriter(&memBuffer{}, nil, DefaultWriterOptions())
	require.NoError(t, err)
	require.NoError(t, w.EnsureChannel("g", "ch", DataTypeFloat64))

	err = w.AppendStrings("g", "ch", []string{"x"})
	require.Error(t, err)
}

func TestAppendValuesUnknownChannel(t *testing.T) {
	w, err := NewWriter(&memBuffer{}, nil, DefaultWriterOptions())
	require.NoError(t, err)

	err = w.AppendValues("g", "missing", []float64{1})
	require.Error(t, err)
}

func TestSetPropertyRequiresExistingGroupAndChannel(t *testing.T) {
	w, err := NewWriter(&memBuffer{}, nil, DefaultWriterOptions())
	require.NoError(t, err)

	err = w.SetProperty("/'nosuchgroup'", Property{Name: "x", TypeCode: DataTypeBool, Value: true})
	require.Error(t, err)

	require.NoError(t, w.EnsureGroup("g"))
	err = w.SetProperty("/'g'/'nosuchchannel'", Property{Name: "x", TypeCode: DataTypeBool, Value: true})
	require.Error(t, err)

	err = w.SetProperty("/'g'", Property{Name: "x", TypeCode: DataTypeBool, Value: true})
	require.NoError(t, err)
}

func TestWriteSegmentNoOpWhenNothingPending(t *testing.T) {
	data := &memBuffer{}
	w, err := NewWriter(data, nil, DefaultWriterOptions())
	require.NoError(t, err)

	require.NoError(t, w.WriteSegment())
	assert.Empty(t, data.buf)

	require.NoError(t, w.EnsureChannel("g", "ch", DataTypeFloat64))
	require.NoError(t, w.WriteSegment()) // declaring a channel is dirty, so this does write.
	assert.NotEmpty(t, data.buf)

	lenAfterFirst := len(data.buf)
	require.NoError(t, w.WriteSegment()) // nothing changed since, so this is a no-op.
	assert.Equal(t, lenAfterFirst, len(data.buf))
}

func TestNewPropertyInfersType(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want DataType
	}{
		{"int64", int64(1), DataTypeInt64},
		{"uint8", uint8(1), DataTypeUint8},
		{"float32", float32(1), DataTypeFloat32},
		{"string", "s", DataTypeString},
		{"bool", true, DataTypeBool},
		{"complex64", complex64(1), DataTypeComplex64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProperty(tt.name, tt.val)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.TypeCode)
			assert.Equal(t, tt.val, p.Value)
		})
	}
}

func TestNewPropertyRejectsUnsupportedType(t *testing.T) {
	_, err := NewProperty("bad", struct{}{})
	require.Error(t, err)
}

// TestRawAppendFastPathMultiChunk exercises appendRawDataOnly with more than
// one new chunk in a single call, which must interleave each channel's bytes
// chunk-by-chunk rather than writing each channel's whole pending buffer
// contiguously (see the comment on appendRawDataOnly).
func TestRawAppendFastPathMultiChunk(t *testing.T) {
	data := &memBuffer{}
	w, err := NewWriter(data, nil, DefaultWriterOptions())
	require.NoError(t, err)

	require.NoError(t, w.EnsureChannel("g", "a", DataTypeInt32))
	require.NoError(t, w.EnsureChannel("g", "b", DataTypeInt32))
	require.NoError(t, w.AppendValues("g", "a", []int32{1, 2}))
	require.NoError(t, w.AppendValues("g", "b", []int32{100, 200}))
	require.NoError(t, w.WriteSegment())

	require.NotNil(t, w.committed)
	require.True(t, w.rawAppendEligible() == false) // nothing pending yet.

	// Two more chunks' worth in one call.
	require.NoError(t, w.AppendValues("g", "a", []int32{3, 4, 5, 6}))
	require.NoError(t, w.AppendValues("g", "b", []int32{300, 400, 500, 600}))
	assert.True(t, w.rawAppendEligible())
	require.NoError(t, w.WriteSegment())
	require.NoError(t, w.Close())

	file, err := New(data, false, int64(len(data.buf)))
	require.NoError(t, err)

	aCh := file.Groups["g"].Channels["a"]
	a, err := aCh.ReadDataInt32All()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, a)

	bCh := file.Groups["g"].Channels["b"]
	b, err := bCh.ReadDataInt32All()
	require.NoError(t, err)
	assert.Equal(t, []int32{100, 200, 300, 400, 500, 600}, b)
}
