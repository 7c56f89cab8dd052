package input

import (
	"errors"
	"fmt"
	"time"
)

// Creation and parse failures fall into four classes. Transient failures
// carry a [*RetryAfter] in their chain; [ErrUnsupported] marks operations
// that can never succeed here; [ErrParsePanicked] marks inputs that must be
// discarded; everything else is a permanent failure for this input.
var (
	// ErrUnsupported marks an operation the source can never perform on
	// this platform or configuration. Permanent, but kept distinct so
	// callers can report it as a capability gap rather than a fault.
	ErrUnsupported = errors.New("input: operation not supported")

	// ErrParsePanicked reports that the worker promoting an input died
	// before producing a result. The input's stream state is unknown, so
	// it must be discarded, never retried.
	ErrParsePanicked = errors.New("input: panic during blocking parse")

	// ErrNotLive is returned by [Input.Metadata] while the input is still
	// lazy: no stream exists, so nothing has been read.
	ErrNotLive = errors.New("input: not live, stream has not been created")

	// ErrNotParsed is returned by [Input.Metadata] when the stream exists
	// but its headers have not been read yet.
	ErrNotParsed = errors.New("input: live but not parsed")

	// ErrNoComposer is returned by [Input.AuxMetadata] when the input was
	// built directly around a live stream and retains no composer to ask.
	ErrNoComposer = errors.New("input: no composer to query")
)

// RetryAfter is a transient creation failure: the same operation may
// succeed if re-attempted no sooner than Wait from now. The driving loop
// owns the retry schedule; nothing in this package ever sleeps.
type RetryAfter struct {
	// Wait is the minimum delay before the next attempt.
	Wait time.Duration
}

func (e *RetryAfter) Error() string {
	return fmt.Sprintf("retry in %.2fs", e.Wait.Seconds())
}

// RetryDelay extracts the retry directive from a creation error chain.
// ok is false when err carries none, meaning the failure is permanent.
func RetryDelay(err error) (wait time.Duration, ok bool) {
	var ra *RetryAfter
	if errors.As(err, &ra) {
		return ra.Wait, true
	}
	return 0, false
}
