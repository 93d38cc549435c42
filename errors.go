package vecfetch

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecfetch/queue"
)

var (
	// ErrClosed is returned by operations on a closed Channel.
	ErrClosed = errors.New("vecfetch: channel closed")

	// ErrInvalidOffset is returned for negative read or prebuffer offsets.
	ErrInvalidOffset = errors.New("vecfetch: invalid offset")

	// ErrIntegrity is matched by every IntegrityError.
	ErrIntegrity = errors.New("vecfetch: integrity check failed")

	// ErrTransport is matched by every TransportError.
	ErrTransport = errors.New("vecfetch: transport failure")

	// ErrNoReference is returned by Open when no reference can be resolved.
	ErrNoReference = errors.New("vecfetch: no reference available")

	// ErrReferenceMismatch is returned when a reference does not describe
	// the source it is opened against.
	ErrReferenceMismatch = errors.New("vecfetch: reference does not match source")
)

// IntegrityError reports downloaded bytes for a leaf that do not match its
// expected hash. Nothing was written for the leaf and it stays invalid.
type IntegrityError struct {
	Leaf int
	Node int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("vecfetch: leaf %d (node %d) failed hash verification", e.Leaf, e.Node)
}

// Is makes every IntegrityError match ErrIntegrity.
func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// TransportError wraps a failed range fetch. The affected leaves are
// unchanged and may be requested again.
//
// The original underlying error can be accessed via errors.Unwrap.
type TransportError struct {
	Offset int64
	Length int64
	cause  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("vecfetch: fetch [%d,+%d): %v", e.Offset, e.Length, e.cause)
}

// Is makes every TransportError match ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, queue.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}
