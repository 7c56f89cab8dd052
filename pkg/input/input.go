package input

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chorus-audio/chorus/pkg/format"
)

// State is the readiness stage of an [Input]. States only ever advance:
// Lazy to Live to Parsed.
type State int

const (
	// StateLazy means only a composer is held; nothing has been opened.
	StateLazy State = iota

	// StateLive means the byte stream exists but its headers are unread.
	StateLive

	// StateParsed means the format is identified and samples can be read.
	StateParsed
)

func (s State) String() string {
	switch s {
	case StateLazy:
		return "lazy"
	case StateLive:
		return "live"
	case StateParsed:
		return "parsed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Input owns one audio source through its readiness lifecycle.
//
// An Input is not safe for concurrent use. It belongs to exactly one
// goroutine at a time; during promotion, ownership passes wholesale to the
// worker and returns to the caller with the outcome (see [PromotePool]).
type Input struct {
	state    State
	composer Composer
	stream   *AudioStream
	parsed   *format.Parsed
}

// New returns a lazy input that will open its stream through composer.
func New(composer Composer) *Input {
	return &Input{state: StateLazy, composer: composer}
}

// FromStream returns an input that is live from the start. composer may be
// nil, in which case aux metadata is unavailable.
func FromStream(stream *AudioStream, composer Composer) *Input {
	return &Input{state: StateLive, composer: composer, stream: stream}
}

// FromReader wraps r into a live input with no composer. hint names the
// expected format, as in [AudioStream.Hint].
func FromReader(r io.Reader, hint string) *Input {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	return FromStream(&AudioStream{Body: rc, Hint: hint}, nil)
}

// State returns the input's readiness stage.
func (in *Input) State() State { return in.state }

// Create opens the byte stream, advancing a lazy input to live. On an
// input that is already live or parsed it does nothing.
//
// Composer failures are returned unchanged, so a [*RetryAfter] or
// [ErrUnsupported] classification survives to the driving loop. A failed
// create leaves the input lazy; it may be retried.
func (in *Input) Create(ctx context.Context) error {
	if in.state != StateLazy {
		return nil
	}

	stream, err := in.composer.Create(ctx)
	if err != nil {
		return err
	}
	in.stream = stream
	in.state = StateLive
	return nil
}

// Parse identifies the stream's format against reg, advancing the input to
// parsed. A lazy input is created first; creation failures surface
// unchanged and leave the input lazy. Parse failures are wrapped and leave
// the input live: the stream may be partially consumed, but the state
// machine stays consistent.
//
// Parse blocks on stream I/O. Run it off the tick goroutine, normally via
// [PromotePool].
func (in *Input) Parse(ctx context.Context, reg *format.Registry) error {
	if in.state == StateParsed {
		return nil
	}
	if err := in.Create(ctx); err != nil {
		return err
	}

	parsed, err := reg.Probe(in.stream.Body, in.stream.Hint)
	if err != nil {
		return fmt.Errorf("input: parse: %w", err)
	}
	in.parsed = parsed
	in.state = StateParsed
	return nil
}

// Metadata returns the in-stream metadata discovered during parsing.
// It fails with [ErrNotLive] on a lazy input and [ErrNotParsed] on a live
// one: in-stream metadata cannot exist before the stream was read.
func (in *Input) Metadata() (format.Metadata, error) {
	switch in.state {
	case StateLazy:
		return format.Metadata{}, ErrNotLive
	case StateLive:
		return format.Metadata{}, ErrNotParsed
	}
	return in.parsed.Metadata, nil
}

// AuxMetadata asks the composer for out-of-band metadata. It works in any
// state but requires a composer; an input built directly from a stream
// fails with [ErrNoComposer]. Retrieval failures reuse the creation error
// vocabulary and pass through unchanged.
func (in *Input) AuxMetadata(ctx context.Context) (*AuxMetadata, error) {
	if in.composer == nil {
		return nil, ErrNoComposer
	}
	return in.composer.AuxMetadata(ctx)
}

// Parsed returns the probe result, or nil unless the input is parsed.
func (in *Input) Parsed() *format.Parsed { return in.parsed }

// Close releases the decoder state and the underlying stream. It is safe
// in any state and on repeated calls; a closed input must not be reused.
func (in *Input) Close() error {
	var errs []error
	if in.parsed != nil && in.parsed.Reader != nil {
		if err := in.parsed.Reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("input: close reader: %w", err))
		}
	}
	if in.stream != nil && in.stream.Body != nil {
		if err := in.stream.Body.Close(); err != nil {
			errs = append(errs, fmt.Errorf("input: close stream: %w", err))
		}
	}
	in.parsed = nil
	in.stream = nil
	return errors.Join(errs...)
}
