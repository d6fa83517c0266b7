package tdms

import (
	"errors"
	"fmt"
)

// Kind categorises a returned [Error] by failure mode, independent of which
// operation produced it.
type Kind string

const (
	// KindMalformedInput indicates the on-disk bytes don't conform to the
	// TDMS grammar: a bad tag, an unknown data-type code, a "matches
	// previous" sentinel with no prior declaration, an offset outside the
	// stream, or non-monotone string offsets.
	KindMalformedInput Kind = "malformed_input"

	// KindTypeConflict indicates a channel was redeclared with a different
	// element type, or a caller tried to append data of the wrong type.
	KindTypeConflict Kind = "type_conflict"

	// KindUnsupported indicates a structurally valid feature this codec
	// does not implement: a version outside {4712, 4713}, a data type
	// without a codec, or a DAQmx configuration the extractor can't
	// interpret.
	KindUnsupported Kind = "unsupported"

	// KindIO indicates the underlying stream returned an error.
	KindIO Kind = "io"

	// KindTruncated indicates the INCOMPLETE lead-in sentinel was
	// encountered while reading. Not treated as an error by default; see
	// ReaderOptions.Strict.
	KindTruncated Kind = "truncated"

	// KindInvariant indicates a programming error detected at runtime,
	// e.g. a data/index metadata size mismatch that must not happen.
	KindInvariant Kind = "invariant"
)

// Error is the error type returned by every fallible operation in this
// package. It carries a Kind, the underlying cause (if any), and diagnostic
// context: the segment's absolute file offset and the path of the
// offending object, where applicable.
type Error struct {
	Kind   Kind
	Offset int64  // absolute file offset of the segment, -1 if not applicable.
	Path   string // offending object path, empty if not applicable.
	msg    string
	cause  error
}

func newError(kind Kind, offset int64, path, msg string, cause error) *Error {
	return &Error{Kind: kind, Offset: offset, Path: path, msg: msg, cause: cause}
}

func (e *Error) Error() string {
	s := string(e.Kind) + ": " + e.msg
	if e.Path != "" {
		s += fmt.Sprintf(" (object %q)", e.Path)
	}
	if e.Offset >= 0 {
		s += fmt.Sprintf(" (segment offset %d)", e.Offset)
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithPath returns a copy of e with the object path set, for errors raised
// before the offending path is known.
func (e *Error) WithPath(path string) *Error {
	cp := *e
	cp.Path = path
	return &cp
}

// Sentinel errors kept from the teacher for errors.Is compatibility; every
// Error returned by this package also wraps one of these where applicable.
var (
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrReadFailed         = errors.New("failed to read data")
	ErrInvalidFileFormat  = errors.New("invalid file format")
	ErrInvalidPath        = errors.New("invalid object path")
	ErrUnsupportedType    = errors.New("unsupported data type")
	ErrIncorrectType      = errors.New("incorrect data type")
	ErrTypeMismatch       = errors.New("channel redeclared with a different data type")
	ErrTruncated          = errors.New("segment truncated (incomplete lead-in)")

	// ErrSegmentUnresolvable marks a segment whose metadata refers to a
	// prior segment or object ("matches previous value", or an omitted
	// object list) that isn't available — a corrupt or mid-write file with
	// a gap rather than a clean truncation. Like [ErrTruncated], only
	// [ReaderOptions.Strict] promotes it to a hard error; non-strict mode
	// drops the one offending segment and keeps reading.
	ErrSegmentUnresolvable = errors.New("segment metadata refers to an unresolvable prior segment or object")
)

func malformedf(offset int64, format string, args ...any) *Error {
	return newError(KindMalformedInput, offset, "", fmt.Sprintf(format, args...), ErrInvalidFileFormat)
}

// unresolvedPriorf reports a segment referencing a prior segment/object
// that isn't available; the caller decides (per [ReaderOptions.Strict])
// whether to abort the read or drop just this segment.
func unresolvedPriorf(offset int64, format string, args ...any) *Error {
	return newError(KindMalformedInput, offset, "", fmt.Sprintf(format, args...), errors.Join(ErrInvalidFileFormat, ErrSegmentUnresolvable))
}

func ioErrorf(offset int64, cause error, format string, args ...any) *Error {
	return newError(KindIO, offset, "", fmt.Sprintf(format, args...), errors.Join(ErrReadFailed, cause))
}

func unsupportedf(offset int64, format string, args ...any) *Error {
	return newError(KindUnsupported, offset, "", fmt.Sprintf(format, args...), ErrUnsupportedType)
}

func invariantf(format string, args ...any) *Error {
	return newError(KindInvariant, -1, "", fmt.Sprintf(format, args...), nil)
}

func typeConflictf(path string, format string, args ...any) *Error {
	return newError(KindTypeConflict, -1, path, fmt.Sprintf(format, args...), ErrTypeMismatch)
}
