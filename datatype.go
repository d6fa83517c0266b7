package tdms

import "fmt"

// DataType identifies the on-disk element type of a property value or a
// channel's raw data, keyed by the u32 tag TDMS stores on disk.
//
// This is a closed enum rather than an interface: every element type this
// codec understands is a fixed, known set, and channel data for a given
// type is copied with a monomorphic byte-level codec, not a reflective or
// type-switched one.
type DataType uint32

const (
	DataTypeVoid DataType = 0

	DataTypeInt8  DataType = 1
	DataTypeInt16 DataType = 2
	DataTypeInt32 DataType = 3
	DataTypeInt64 DataType = 4

	DataTypeUint8  DataType = 5
	DataTypeUint16 DataType = 6
	DataTypeUint32 DataType = 7
	DataTypeUint64 DataType = 8

	DataTypeFloat32  DataType = 9
	DataTypeFloat64  DataType = 10
	DataTypeFloat128 DataType = 11

	DataTypeFloat32WithUnit  DataType = 0x19
	DataTypeFloat64WithUnit  DataType = 0x1A
	DataTypeFloat128WithUnit DataType = 0x1B

	DataTypeString DataType = 0x20
	DataTypeBool   DataType = 0x21

	DataTypeTimestamp DataType = 0x44

	DataTypeFixedPoint DataType = 0x4F

	DataTypeComplex64  DataType = 0x08000c
	DataTypeComplex128 DataType = 0x10000d

	// DataTypeDAQmxRawData is the sentinel tag used in a channel's data-type
	// slot when its raw data is laid out as a DAQmx scaler vector rather
	// than a uniform array of one of the types above.
	DataTypeDAQmxRawData DataType = 0xFFFFFFFF
)

// Size returns the fixed on-disk width of a single value of this type, in
// bytes. It returns -1 for variable-width types (string) and for
// DAQmxRawData, whose width depends on its scaler vector.
func (dt DataType) Size() int {
	switch dt {
	case DataTypeString, DataTypeDAQmxRawData:
		return -1
	case DataTypeVoid:
		return 0
	case DataTypeInt8, DataTypeUint8, DataTypeBool:
		return 1
	case DataTypeInt16, DataTypeUint16:
		return 2
	case DataTypeInt32, DataTypeUint32, DataTypeFloat32, DataTypeFloat32WithUnit:
		return 4
	case DataTypeInt64, DataTypeUint64, DataTypeFloat64, DataTypeFloat64WithUnit, DataTypeComplex64:
		return 8
	case DataTypeFloat128, DataTypeFloat128WithUnit, DataTypeComplex128, DataTypeTimestamp:
		return 16
	default:
		return -1
	}
}

// fixedWidth is a convenience wrapper over Size that also reports whether
// the type has a fixed width at all.
func (dt DataType) fixedWidth() (int, bool) {
	n := dt.Size()
	return n, n >= 0
}

func (dt DataType) String() string {
	switch dt {
	case DataTypeVoid:
		return "Void"
	case DataTypeInt8:
		return "Int8"
	case DataTypeInt16:
		return "Int16"
	case DataTypeInt32:
		return "Int32"
	case DataTypeInt64:
		return "Int64"
	case DataTypeUint8:
		return "Uint8"
	case DataTypeUint16:
		return "Uint16"
	case DataTypeUint32:
		return "Uint32"
	case DataTypeUint64:
		return "Uint64"
	case DataTypeFloat32, DataTypeFloat32WithUnit:
		return "Float32"
	case DataTypeFloat64, DataTypeFloat64WithUnit:
		return "Float64"
	case DataTypeFloat128, DataTypeFloat128WithUnit:
		return "Float128"
	case DataTypeString:
		return "String"
	case DataTypeBool:
		return "Boolean"
	case DataTypeTimestamp:
		return "Timestamp"
	case DataTypeFixedPoint:
		return "FixedPoint"
	case DataTypeComplex64:
		return "ComplexFloat32"
	case DataTypeComplex128:
		return "ComplexFloat64"
	case DataTypeDAQmxRawData:
		return "DAQmxRawData"
	default:
		return fmt.Sprintf("Unknown(0x%X)", uint32(dt))
	}
}

// HasUnit reports whether dt is one of the "with unit" float variants; these
// share an on-disk layout with their plain counterpart and only differ in
// that readers should expect a "unit_string" property alongside the value.
func (dt DataType) HasUnit() bool {
	switch dt {
	case DataTypeFloat32WithUnit, DataTypeFloat64WithUnit, DataTypeFloat128WithUnit:
		return true
	default:
		return false
	}
}

// supportedForChannelData reports whether values of this type can be
// written to or read from a channel's raw-data block. FixedPoint is
// excluded: its on-disk width is undocumented upstream (see the teacher's
// TDSFixedPoint comment), so there is no way to know how far to skip even
// to ignore it.
func (dt DataType) supportedForChannelData() bool {
	switch dt {
	case DataTypeFixedPoint, DataTypeVoid:
		return false
	default:
		return true
	}
}
