package tdms

import (
	"math/bits"
	"time"
)

// tdmsEpoch is the TDMS epoch (1904-01-01T00:00:00Z) expressed as a Unix
// timestamp, i.e. the number of seconds you add to a TDMS timestamp to get
// the equivalent Unix timestamp, or subtract from a Unix timestamp to go
// the other way.
const tdmsEpoch int64 = -2_082_844_800

// Timestamp is the TDMS 128-bit timestamp: whole seconds since the TDMS
// epoch plus a binary fraction of a second.
//
// The on-disk layout is (fractions u64, seconds i64) in segment byte order
// — this is the order the reference implementation uses along its property
// encoding path. A second, raw-array encoding path in the reference writes
// (seconds, fractions) instead; this is an open question the format
// specification explicitly leaves for implementers to resolve (see
// SPEC_FULL.md). This codec always uses (fractions, seconds) for both
// properties and channel data, and does not attempt to auto-detect the
// alternate order.
type Timestamp struct {
	// Seconds is the number of whole seconds since 1904-01-01T00:00:00Z.
	Seconds int64

	// Fractions is the fractional part of the second, as a count of
	// 2^-64ths of a second.
	Fractions uint64
}

// AsTime converts t to a [time.Time]. This loses precision: Fractions
// retains roughly 1.8e10 times more resolution than a time.Time's
// nanoseconds can represent.
func (t Timestamp) AsTime() time.Time {
	seconds := t.Seconds + tdmsEpoch
	nanos := fractionToNanos(t.Fractions)
	return time.Unix(seconds, nanos).UTC()
}

// NewTimestamp converts a [time.Time] to a Timestamp.
func NewTimestamp(t time.Time) Timestamp {
	u := t.UTC()
	seconds := u.Unix() - tdmsEpoch
	nanos := uint64(u.Nanosecond())
	return Timestamp{
		Seconds:   seconds,
		Fractions: nanosToFraction(nanos),
	}
}

// fractionToNanos converts a count of 2^-64ths of a second to nanoseconds:
// nanos = fractions * 1e9 / 2^64, computed via the full 128-bit product to
// avoid overflow.
func fractionToNanos(fractions uint64) int64 {
	hi, _ := bits.Mul64(fractions, 1_000_000_000)
	return int64(hi)
}

// nanosToFraction converts nanoseconds to a count of 2^-64ths of a second:
// fractions = nanos * 2^64 / 1e9, computed via 128-bit division with the
// dividend's high word equal to nanos (nanos shifted left 64 bits).
func nanosToFraction(nanos uint64) uint64 {
	if nanos == 0 {
		return 0
	}
	q, _ := bits.Div64(nanos, 0, 1_000_000_000)
	return q
}
