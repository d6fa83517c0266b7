package tdms

import (
	"encoding/binary"
	"math/big"
	"slices"
)

// Float128 is a 128-bit IEEE 754 quadruple-precision floating point value,
// as used by LabVIEW's extended-precision float type on disk. Go's
// math/big.Float cannot represent NaN, so Float128 tracks that case
// separately.
type Float128 struct {
	value *big.Float
	isNaN bool
}

// NewFloat128 creates a Float128 from a [big.Float], preserving full
// precision.
func NewFloat128(value *big.Float) Float128 {
	return Float128{value: new(big.Float).Copy(value)}
}

// Float64 converts the value to a float64, losing precision. For NaN
// values this returns math.NaN().
func (f Float128) Float64() float64 {
	if f.isNaN {
		return nan64()
	}
	if f.value == nil {
		return 0
	}
	v, _ := f.value.Float64()
	return v
}

// IsNaN reports whether f represents not-a-number.
func (f Float128) IsNaN() bool {
	return f.isNaN
}

// SetNaN sets f to not-a-number and returns f.
func (f *Float128) SetNaN() *Float128 {
	f.isNaN = true
	f.value = nil
	return f
}

// SetValue sets f to value, preserving full precision, and returns f.
func (f *Float128) SetValue(value *big.Float) *Float128 {
	f.isNaN = false
	f.value = new(big.Float).Copy(value)
	return f
}

// AsBigFloat returns the value of f as a [big.Float]. The returned pointer
// is a copy; mutating it does not change f. Returns nil for NaN.
func (f Float128) AsBigFloat() *big.Float {
	if f.isNaN || f.value == nil {
		return nil
	}
	return new(big.Float).Copy(f.value)
}

func nan64() float64 {
	var zero float64
	return zero / zero
}

// decodeFloat128 parses a 128-bit IEEE 754 quad precision float from 16
// bytes in the given byte order.
func decodeFloat128(data []byte, order binary.ByteOrder) Float128 {
	buf := make([]byte, 16)
	copy(buf, data)
	if order == binary.LittleEndian {
		slices.Reverse(buf)
	}

	sign := (buf[0] >> 7) & 1
	exponent := uint16(buf[0]&0x7F)<<8 | uint16(buf[1])
	mantissaBits := buf[2:16]

	result := new(big.Float).SetPrec(113)

	if exponent == 0x7FFF {
		if isZeroBytes(mantissaBits) {
			result.SetInf(sign == 1)
			return NewFloat128(result)
		}
		return *new(Float128).SetNaN()
	}

	shiftAmount := new(big.Int).Lsh(big.NewInt(1), 112)
	mantissaValue := bytesToBigInt(mantissaBits)

	if exponent == 0 {
		if isZeroBytes(mantissaBits) {
			return NewFloat128(new(big.Float).SetInt64(0))
		}

		mantissaFloat := new(big.Float).SetInt(mantissaValue)
		mantissaFloat.Quo(mantissaFloat, new(big.Float).SetInt(shiftAmount))

		power := new(big.Float).SetMantExp(big.NewFloat(1), -16382)
		result.Mul(mantissaFloat, power)
	} else {
		exponentValue := int(exponent) - 16383

		mantissaFloat := new(big.Float).SetInt(mantissaValue)
		mantissaFloat.Quo(mantissaFloat, new(big.Float).SetInt(shiftAmount))
		mantissaFloat.Add(mantissaFloat, big.NewFloat(1))

		power := new(big.Float).SetMantExp(big.NewFloat(1), exponentValue)
		result.Mul(mantissaFloat, power)
	}

	if sign == 1 {
		result.Neg(result)
	}

	return NewFloat128(result)
}

// encodeFloat128 renders f as 16 bytes of IEEE 754 quad precision in the
// given byte order. Values above the representable exponent range
// saturate to +/-Inf; values below the normal range are written as
// subnormals (or zero, if they are smaller than the smallest subnormal).
func encodeFloat128(f Float128, order binary.ByteOrder) []byte {
	buf := make([]byte, 16)

	if f.isNaN {
		buf[0] = 0x7F
		buf[1] = 0xFF
		buf[15] = 1 // non-zero mantissa marks NaN rather than Inf.
	} else if f.value == nil || f.value.Sign() == 0 {
		// all zero.
	} else {
		sign := byte(0)
		mantissaFloat := new(big.Float).SetPrec(200).Copy(f.value)
		if mantissaFloat.Sign() < 0 {
			sign = 1
			mantissaFloat.Neg(mantissaFloat)
		}

		if mantissaFloat.IsInf() {
			buf[0] = sign<<7 | 0x7F
			buf[1] = 0xFF
		} else {
			mant := new(big.Float)
			exp2 := mantissaFloat.MantExp(mant) // mant in [0.5, 1), value = mant * 2^exp2
			// Normalise so the leading bit sits just above the binary
			// point: value = 1.xxx * 2^(exp2-1).
			exponent := exp2 - 1
			mant.SetMantExp(mant, 1) // mant now in [1, 2)

			biasedExponent := exponent + 16383
			if biasedExponent >= 0x7FFF {
				buf[0] = sign<<7 | 0x7F
				buf[1] = 0xFF
			} else {
				frac := new(big.Float).SetPrec(200)
				if biasedExponent > 0 {
					frac.Sub(mant, big.NewFloat(1))
					frac.Mul(frac, new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 112)))
				} else {
					// Subnormal: no implicit leading bit, value = frac * 2^-16382.
					frac.SetMantExp(mantissaFloat, 16382+112)
					biasedExponent = 0
				}
				mantissaInt, _ := frac.Int(nil)

				mantissaBytes := make([]byte, 14)
				mantissaInt.FillBytes(mantissaBytes)

				buf[0] = sign<<7 | byte(biasedExponent>>8)&0x7F
				buf[1] = byte(biasedExponent)
				copy(buf[2:16], mantissaBytes)
			}
		}
	}

	if order == binary.LittleEndian {
		slices.Reverse(buf)
	}
	return buf
}

func isZeroBytes(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func bytesToBigInt(b []byte) *big.Int {
	result := new(big.Int)
	for _, v := range b {
		result.Lsh(result, 8)
		result.Or(result, big.NewInt(int64(v)))
	}
	return result
}
