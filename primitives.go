package tdms

// Primitive encoding and decoding for the fixed-width integer and float
// types, length-prefixed strings, and the data-type-keyed property value
// codec.
//
// This is deliberately not built on encoding/binary's reflection-based
// binary.Read/Write: walking a byte slice by hand is significantly faster
// and every type here has a fixed, known layout, so reflection buys
// nothing.

import (
	"encoding/binary"
	"io"
	"math"
	"time"
)

func readFull(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readUint8(r io.Reader) (uint8, error) {
	b, err := readFull(r, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func readUint16(r io.Reader, order binary.ByteOrder) (uint16, error) {
	b, err := readFull(r, 2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

func readUint32(r io.Reader, order binary.ByteOrder) (uint32, error) {
	b, err := readFull(r, 4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

func readUint64(r io.Reader, order binary.ByteOrder) (uint64, error) {
	b, err := readFull(r, 8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(b), nil
}

func readString(r io.Reader, order binary.ByteOrder) (string, error) {
	length, err := readUint32(r, order)
	if err != nil {
		return "", err
	}
	b, err := readFull(r, int(length))
	if err != nil {
		return "", err
	}
	return decodeUTF8Lenient(b), nil
}

// decodeUTF8Lenient converts b to a string, replacing ill-formed UTF-8
// sequences with U+FFFD rather than failing.
func decodeUTF8Lenient(b []byte) string {
	return string([]rune(string(b)))
}

func writeUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func writeUint16(w io.Writer, order binary.ByteOrder, v uint16) error {
	b := make([]byte, 2)
	order.PutUint16(b, v)
	_, err := w.Write(b)
	return err
}

func writeUint32(w io.Writer, order binary.ByteOrder, v uint32) error {
	b := make([]byte, 4)
	order.PutUint32(b, v)
	_, err := w.Write(b)
	return err
}

func writeUint64(w io.Writer, order binary.ByteOrder, v uint64) error {
	b := make([]byte, 8)
	order.PutUint64(b, v)
	_, err := w.Write(b)
	return err
}

func writeString(w io.Writer, order binary.ByteOrder, s string) error {
	if err := writeUint32(w, order, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func appendUint16(buf []byte, order binary.ByteOrder, v uint16) []byte {
	b := make([]byte, 2)
	order.PutUint16(b, v)
	return append(buf, b...)
}

func appendUint32(buf []byte, order binary.ByteOrder, v uint32) []byte {
	b := make([]byte, 4)
	order.PutUint32(b, v)
	return append(buf, b...)
}

func appendUint64(buf []byte, order binary.ByteOrder, v uint64) []byte {
	b := make([]byte, 8)
	order.PutUint64(b, v)
	return append(buf, b...)
}

func appendString(buf []byte, order binary.ByteOrder, s string) []byte {
	buf = appendUint32(buf, order, uint32(len(s)))
	return append(buf, s...)
}

// Interpret functions decode a single value from a byte slice that has
// already been read off the wire (used by the bulk channel-data decoders
// in stream.go, which read whole batches at once).

func interpretInt8(b []byte, _ binary.ByteOrder) int8    { return int8(b[0]) }
func interpretInt16(b []byte, o binary.ByteOrder) int16  { return int16(o.Uint16(b)) }
func interpretInt32(b []byte, o binary.ByteOrder) int32  { return int32(o.Uint32(b)) }
func interpretInt64(b []byte, o binary.ByteOrder) int64  { return int64(o.Uint64(b)) }
func interpretUint8(b []byte, _ binary.ByteOrder) uint8  { return b[0] }
func interpretUint16(b []byte, o binary.ByteOrder) uint16 { return o.Uint16(b) }
func interpretUint32(b []byte, o binary.ByteOrder) uint32 { return o.Uint32(b) }
func interpretUint64(b []byte, o binary.ByteOrder) uint64 { return o.Uint64(b) }

func interpretFloat32(b []byte, o binary.ByteOrder) float32 {
	return math.Float32frombits(o.Uint32(b))
}

func interpretFloat64(b []byte, o binary.ByteOrder) float64 {
	return math.Float64frombits(o.Uint64(b))
}

func interpretFloat128(b []byte, o binary.ByteOrder) Float128 {
	return decodeFloat128(b, o)
}

func interpretBool(b []byte, _ binary.ByteOrder) bool { return b[0] != 0 }

func interpretString(b []byte, _ binary.ByteOrder) string {
	return decodeUTF8Lenient(b)
}

func interpretTime(b []byte, o binary.ByteOrder) time.Time {
	return interpretTimestamp(b, o).AsTime()
}

func interpretTimestamp(b []byte, o binary.ByteOrder) Timestamp {
	return Timestamp{
		Fractions: o.Uint64(b[0:8]),
		Seconds:   int64(o.Uint64(b[8:16])),
	}
}

func interpretComplex64(b []byte, o binary.ByteOrder) complex64 {
	re := math.Float32frombits(o.Uint32(b[0:4]))
	im := math.Float32frombits(o.Uint32(b[4:8]))
	return complex(re, im)
}

func interpretComplex128(b []byte, o binary.ByteOrder) complex128 {
	re := math.Float64frombits(o.Uint64(b[0:8]))
	im := math.Float64frombits(o.Uint64(b[8:16]))
	return complex(re, im)
}

// Encode functions render a single value as its on-disk byte image,
// appending to buf.

func encodeInt8(buf []byte, _ binary.ByteOrder, v int8) []byte { return append(buf, byte(v)) }
func encodeUint8(buf []byte, _ binary.ByteOrder, v uint8) []byte { return append(buf, v) }
func encodeInt16(buf []byte, o binary.ByteOrder, v int16) []byte { return appendUint16(buf, o, uint16(v)) }
func encodeUint16(buf []byte, o binary.ByteOrder, v uint16) []byte { return appendUint16(buf, o, v) }
func encodeInt32(buf []byte, o binary.ByteOrder, v int32) []byte { return appendUint32(buf, o, uint32(v)) }
func encodeUint32(buf []byte, o binary.ByteOrder, v uint32) []byte { return appendUint32(buf, o, v) }
func encodeInt64(buf []byte, o binary.ByteOrder, v int64) []byte { return appendUint64(buf, o, uint64(v)) }
func encodeUint64(buf []byte, o binary.ByteOrder, v uint64) []byte { return appendUint64(buf, o, v) }

func encodeFloat32(buf []byte, o binary.ByteOrder, v float32) []byte {
	return appendUint32(buf, o, math.Float32bits(v))
}

func encodeFloat64(buf []byte, o binary.ByteOrder, v float64) []byte {
	return appendUint64(buf, o, math.Float64bits(v))
}

func encodeBool(buf []byte, _ binary.ByteOrder, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func encodeTimestamp(buf []byte, o binary.ByteOrder, v Timestamp) []byte {
	buf = appendUint64(buf, o, v.Fractions)
	buf = appendUint64(buf, o, uint64(v.Seconds))
	return buf
}

func encodeComplex64(buf []byte, o binary.ByteOrder, v complex64) []byte {
	buf = appendUint32(buf, o, math.Float32bits(real(v)))
	buf = appendUint32(buf, o, math.Float32bits(imag(v)))
	return buf
}

func encodeComplex128(buf []byte, o binary.ByteOrder, v complex128) []byte {
	buf = appendUint64(buf, o, math.Float64bits(real(v)))
	buf = appendUint64(buf, o, math.Float64bits(imag(v)))
	return buf
}

// readPropertyValue decodes a single property value of the given type from
// r, used while parsing the metadata block's per-object property list.
func readPropertyValue(r io.Reader, order binary.ByteOrder, dt DataType) (any, error) {
	switch dt {
	case DataTypeInt8:
		b, err := readUint8(r)
		return int8(b), err
	case DataTypeInt16:
		v, err := readUint16(r, order)
		return int16(v), err
	case DataTypeInt32:
		v, err := readUint32(r, order)
		return int32(v), err
	case DataTypeInt64:
		v, err := readUint64(r, order)
		return int64(v), err
	case DataTypeUint8:
		return readUint8(r)
	case DataTypeUint16:
		return readUint16(r, order)
	case DataTypeUint32:
		return readUint32(r, order)
	case DataTypeUint64:
		return readUint64(r, order)
	case DataTypeFloat32, DataTypeFloat32WithUnit:
		v, err := readUint32(r, order)
		return math.Float32frombits(v), err
	case DataTypeFloat64, DataTypeFloat64WithUnit:
		v, err := readUint64(r, order)
		return math.Float64frombits(v), err
	case DataTypeFloat128, DataTypeFloat128WithUnit:
		b, err := readFull(r, 16)
		if err != nil {
			return nil, err
		}
		return decodeFloat128(b, order), nil
	case DataTypeString:
		return readString(r, order)
	case DataTypeBool:
		b, err := readUint8(r)
		return b != 0, err
	case DataTypeTimestamp:
		b, err := readFull(r, 16)
		if err != nil {
			return nil, err
		}
		return interpretTimestamp(b, order), nil
	case DataTypeComplex64:
		b, err := readFull(r, 8)
		if err != nil {
			return nil, err
		}
		return interpretComplex64(b, order), nil
	case DataTypeComplex128:
		b, err := readFull(r, 16)
		if err != nil {
			return nil, err
		}
		return interpretComplex128(b, order), nil
	case DataTypeVoid:
		return nil, nil
	default:
		return nil, unsupportedf(-1, "property data type %s has no codec", dt)
	}
}

// writePropertyValue encodes a single property value per its type, used
// while serialising the metadata block's per-object property list.
func writePropertyValue(w io.Writer, order binary.ByteOrder, dt DataType, value any) error {
	var buf []byte
	switch dt {
	case DataTypeInt8:
		buf = encodeInt8(buf, order, value.(int8))
	case DataTypeInt16:
		buf = encodeInt16(buf, order, value.(int16))
	case DataTypeInt32:
		buf = encodeInt32(buf, order, value.(int32))
	case DataTypeInt64:
		buf = encodeInt64(buf, order, value.(int64))
	case DataTypeUint8:
		buf = encodeUint8(buf, order, value.(uint8))
	case DataTypeUint16:
		buf = encodeUint16(buf, order, value.(uint16))
	case DataTypeUint32:
		buf = encodeUint32(buf, order, value.(uint32))
	case DataTypeUint64:
		buf = encodeUint64(buf, order, value.(uint64))
	case DataTypeFloat32, DataTypeFloat32WithUnit:
		buf = encodeFloat32(buf, order, value.(float32))
	case DataTypeFloat64, DataTypeFloat64WithUnit:
		buf = encodeFloat64(buf, order, value.(float64))
	case DataTypeFloat128, DataTypeFloat128WithUnit:
		buf = encodeFloat128(value.(Float128), order)
	case DataTypeString:
		return writeString(w, order, value.(string))
	case DataTypeBool:
		buf = encodeBool(buf, order, value.(bool))
	case DataTypeTimestamp:
		buf = encodeTimestamp(buf, order, value.(Timestamp))
	case DataTypeComplex64:
		buf = encodeComplex64(buf, order, value.(complex64))
	case DataTypeComplex128:
		buf = encodeComplex128(buf, order, value.(complex128))
	case DataTypeVoid:
		return nil
	default:
		return unsupportedf(-1, "property data type %s has no codec", dt)
	}
	_, err := w.Write(buf)
	return err
}
