// Package input models lazily-created audio sources and their readiness
// lifecycle: a source starts as a recipe, becomes a live byte stream on
// demand, and becomes playable once its format has been identified. The
// blocking work of both steps is designed to run off the engine's tick
// goroutine, with failures classified so a driving loop knows whether to
// retry, give up, or discard.
package input

import (
	"context"
	"io"
	"time"
)

// Composer is the recipe for an audio source: it can open the live byte
// stream on demand and answer metadata questions without opening anything.
//
// Create is only ever invoked by the [Input] that owns the composer.
// AuxMetadata may be called concurrently from any goroutine and
// implementations must tolerate that.
type Composer interface {
	// Create opens the live byte stream. Failures use the creation error
	// vocabulary: wrap [*RetryAfter] for transient conditions, wrap
	// [ErrUnsupported] when this composer can never produce a stream on
	// the current platform, and return any other error for permanent
	// failures.
	Create(ctx context.Context) (*AudioStream, error)

	// AuxMetadata fetches out-of-band metadata without opening a stream.
	// Retrieval failures reuse the creation error vocabulary.
	AuxMetadata(ctx context.Context) (*AuxMetadata, error)
}

// AudioStream is a live, not yet parsed byte stream.
type AudioStream struct {
	// Body is the stream itself, exclusively owned by whoever holds the
	// AudioStream.
	Body io.ReadCloser

	// Hint names the expected format (a registry name or file extension,
	// without the dot). Probing tries the hinted format first. May be
	// empty when the source has no idea what it carries.
	Hint string
}

// AuxMetadata is descriptive information a [Composer] can provide without
// touching the stream, typically from a remote service or the source's own
// bookkeeping. Contrast with [format.Metadata], which is read out of the
// stream during parsing. Fields the source cannot answer stay zero-valued.
type AuxMetadata struct {
	Title    string
	Artist   string
	Album    string
	Date     string
	Duration time.Duration

	// SourceURL points back at where the audio came from.
	SourceURL string

	// Thumbnail is a URL for cover art, when the source has one.
	Thumbnail string
}
