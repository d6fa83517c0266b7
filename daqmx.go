package tdms

// DAQmx raw data support: channels produced by National Instruments' DAQmx
// driver store their samples as one or more "raw buffers" of scaled
// integers rather than a uniform array of one element type. A raw data
// index for such a channel carries a vector of scalers (one value
// extracted from a specific byte offset of a specific raw buffer, using a
// specific element type) and a vector of widths (the byte stride of each
// raw buffer). This codec surfaces the extracted, per-scaler values;
// mapping them through NI's scaling metadata back to physical units is out
// of scope (see scaling.go).

import (
	"encoding/binary"
	"io"
	"math"
)

// readDAQmxScalers parses the scaler and width vectors that follow a
// DAQmx-flavoured raw data index header, and derives idx.totalSize from
// them.
func (f *File) readDAQmxScalers(idx *objectIndex, lead *leadIn) error {
	numScalers, err := readUint32(f.data, lead.byteOrder)
	if err != nil {
		return ioErrorf(-1, err, "failed to read scaler count")
	}

	idx.scalers = make([]daqmxScaler, numScalers)
	scalersBytes, err := readFull(f.data, int(scalerSize*numScalers))
	if err != nil {
		return ioErrorf(-1, err, "failed to read scaler vector")
	}

	for i := range numScalers {
		b := scalersBytes[i*scalerSize : (i+1)*scalerSize]
		idx.scalers[i] = daqmxScaler{
			dataType:                  DataType(lead.byteOrder.Uint32(b[0:4])),
			rawBufferIndex:            lead.byteOrder.Uint32(b[4:8]),
			rawByteOffsetWithinStride: lead.byteOrder.Uint32(b[8:12]),
			sampleFormatBitmap:        lead.byteOrder.Uint32(b[12:16]),
			scaleID:                   lead.byteOrder.Uint32(b[16:20]),
		}
	}

	numWidths, err := readUint32(f.data, lead.byteOrder)
	if err != nil {
		return ioErrorf(-1, err, "failed to read width count")
	}

	idx.widths = make([]uint32, numWidths)
	widthsBytes, err := readFull(f.data, int(4*numWidths))
	if err != nil {
		return ioErrorf(-1, err, "failed to read width vector")
	}
	for i := range numWidths {
		idx.widths[i] = lead.byteOrder.Uint32(widthsBytes[i*4:])
	}

	var rawBufferStride uint64
	for _, w := range idx.widths {
		rawBufferStride += uint64(w)
	}
	idx.totalSize = idx.numValues * rawBufferStride

	return nil
}

// DAQmxValue is a single sample extracted from a DAQmx raw buffer by one
// scaler, still in its raw (unscaled) form. Value carries the scaler's
// native bit pattern widened to int64: for integer DataTypes it is the
// sign- or zero-extended integer; for DataTypeFloat32/DataTypeFloat64 it is
// the IEEE-754 bit pattern, recovered with AsFloat32/AsFloat64.
type DAQmxValue struct {
	ScaleID  uint32
	DataType DataType
	Value    int64
}

// AsFloat32 reinterprets Value as a float32. Returns ErrIncorrectType if
// DataType is not DataTypeFloat32.
func (v DAQmxValue) AsFloat32() (float32, error) {
	if v.DataType != DataTypeFloat32 {
		return 0, ErrIncorrectType
	}
	return math.Float32frombits(uint32(v.Value)), nil
}

// AsFloat64 reinterprets Value as a float64. Returns ErrIncorrectType if
// DataType is not DataTypeFloat64.
func (v DAQmxValue) AsFloat64() (float64, error) {
	if v.DataType != DataTypeFloat64 {
		return 0, ErrIncorrectType
	}
	return math.Float64frombits(uint64(v.Value)), nil
}

// ReadDAQmxRawAll reads every sample this channel's scalers produce,
// across all chunks, without applying any NI scaling. Only valid for
// channels whose DataType is [DataTypeDAQmxRawData]; returns
// [ErrUnsupportedType] otherwise.
func (ch *Channel) ReadDAQmxRawAll() ([][]DAQmxValue, error) {
	if ch.DataType != DataTypeDAQmxRawData {
		return nil, unsupportedf(-1, "ReadDAQmxRawAll called on non-DAQmx channel %s", ch.path)
	}

	idx, ok := ch.f.objects[ch.path]
	if !ok || idx.index == nil {
		return nil, invariantf("channel %s has no resolved object index", ch.path)
	}

	var results [][]DAQmxValue
	for _, chunk := range ch.dataChunks {
		samples, err := readDAQmxChunk(ch.f.data, chunk, idx.index)
		if err != nil {
			return nil, err
		}
		results = append(results, samples...)
	}
	return results, nil
}

func readDAQmxChunk(r io.ReadSeeker, chunk dataChunk, idx *objectIndex) ([][]DAQmxValue, error) {
	var rawBufferStride uint64
	for _, w := range idx.widths {
		rawBufferStride += uint64(w)
	}
	if rawBufferStride == 0 {
		return nil, nil
	}

	if _, err := r.Seek(chunk.offset, io.SeekStart); err != nil {
		return nil, ioErrorf(chunk.offset, err, "failed to seek to DAQmx chunk")
	}

	samples := make([][]DAQmxValue, chunk.numValues)
	stride := make([]byte, rawBufferStride)

	for sampleIdx := range chunk.numValues {
		if sampleIdx > 0 && chunk.isInterleaved {
			if _, err := r.Seek(chunk.stride, io.SeekCurrent); err != nil {
				return nil, ioErrorf(chunk.offset, err, "failed to seek past interleaved stride")
			}
		}
		if _, err := io.ReadFull(r, stride); err != nil {
			return nil, ioErrorf(chunk.offset, err, "failed to read DAQmx raw buffer row")
		}

		row := make([]DAQmxValue, len(idx.scalers))
		for i, sc := range idx.scalers {
			row[i] = DAQmxValue{
				ScaleID:  sc.scaleID,
				DataType: sc.dataType,
				Value:    extractDAQmxScalerValue(stride, sc, chunk.order),
			}
		}
		samples[sampleIdx] = row
	}

	return samples, nil
}

// extractDAQmxScalerValue pulls one scaler's value out of a sample's raw
// buffer row, widening to int64 regardless of the scaler's native width so
// callers have one type to deal with before applying their own scaling (or,
// for the float cases, reinterpreting via [DAQmxValue.AsFloat32]/
// [DAQmxValue.AsFloat64]).
func extractDAQmxScalerValue(row []byte, sc daqmxScaler, order binary.ByteOrder) int64 {
	off := sc.rawByteOffsetWithinStride
	if int(off) >= len(row) {
		return 0
	}

	switch sc.dataType {
	case DataTypeInt8:
		return int64(int8(row[off]))
	case DataTypeInt16:
		return int64(interpretInt16(row[off:off+2], order))
	case DataTypeInt32:
		return int64(interpretInt32(row[off:off+4], order))
	case DataTypeInt64:
		return interpretInt64(row[off:off+8], order)
	case DataTypeUint8:
		return int64(row[off])
	case DataTypeUint16:
		return int64(interpretUint16(row[off:off+2], order))
	case DataTypeUint32:
		return int64(interpretUint32(row[off:off+4], order))
	case DataTypeUint64:
		return int64(interpretUint64(row[off:off+8], order))
	case DataTypeFloat32:
		return int64(math.Float32bits(interpretFloat32(row[off:off+4], order)))
	case DataTypeFloat64:
		return int64(math.Float64bits(interpretFloat64(row[off:off+8], order)))
	default:
		return 0
	}
}
