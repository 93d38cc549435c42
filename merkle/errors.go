package merkle

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is matched by every artifact decoding failure.
	ErrFormat = errors.New("merkle: invalid artifact format")

	// ErrInvalidShape is returned for negative content sizes and chunk sizes
	// that are not a positive power of two.
	ErrInvalidShape = errors.New("merkle: invalid shape")

	// ErrShapeMismatch is returned when two trees over different geometry
	// are compared.
	ErrShapeMismatch = errors.New("merkle: shape mismatch")

	// ErrLeafOutOfRange is returned for leaf indices outside the shape.
	ErrLeafOutOfRange = errors.New("merkle: leaf index out of range")

	// ErrProofMismatch is returned by VerifyProof when the recomputed root
	// differs from the expected root.
	ErrProofMismatch = errors.New("merkle: proof does not match root")

	// ErrStateClosed is returned by operations on a closed State.
	ErrStateClosed = errors.New("merkle: state is closed")
)

// FormatError describes why an artifact could not be loaded.
//
// errors.Is(err, ErrFormat) reports true for every FormatError. The original
// underlying error (if any) can be accessed via errors.Unwrap.
type FormatError struct {
	Path   string
	Reason string
	cause  error
}

func (e *FormatError) Error() string {
	msg := "merkle: invalid artifact"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Is makes every FormatError match ErrFormat.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

func (e *FormatError) Unwrap() error { return e.cause }

func formatErrorf(path string, cause error, format string, args ...any) error {
	return &FormatError{Path: path, Reason: fmt.Sprintf(format, args...), cause: cause}
}
