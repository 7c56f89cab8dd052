// Package format identifies audio container formats and decodes them into
// interleaved 16-bit PCM. A [Registry] holds the known formats and probes
// byte streams by their leading magic bytes; the concrete formats live in
// subpackages and are wired into a registry by the caller.
package format

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// SniffLen is the number of leading stream bytes made available to
// [Format.Sniff]. Every supported container is recognisable within this
// window.
const SniffLen = 32

// Reader decodes a parsed stream into interleaved PCM samples at the rate
// and channel count reported in the stream's [Info].
type Reader interface {
	// ReadPCM fills dst with decoded samples and returns how many it wrote.
	// It returns io.EOF once the stream is exhausted.
	ReadPCM(dst []int16) (int, error)

	// Close releases decoder state. It does not close the underlying byte
	// stream, which belongs to whoever opened it.
	Close() error
}

// Info describes the technical shape of a parsed stream.
type Info struct {
	// Container is the outer format name, e.g. "wav" or "ogg".
	Container string

	// Codec is the encoded audio format inside the container.
	Codec string

	// SampleRate is the stream's native sample rate in Hz.
	SampleRate int

	// Channels is the stream's native channel count.
	Channels int
}

// Metadata holds descriptive information read out of the stream itself
// during parsing. Fields the container does not carry stay zero-valued.
type Metadata struct {
	Title    string
	Artist   string
	Album    string
	Date     string
	Duration time.Duration
}

// Parsed bundles everything probing yields: the decoding reader plus the
// technical and descriptive information discovered along the way.
type Parsed struct {
	Reader   Reader
	Info     Info
	Metadata Metadata
}

// Format is one recognisable container format.
type Format interface {
	// Name is the registry key. It is also matched against probe hints,
	// so it should equal the format's usual file extension.
	Name() string

	// Sniff reports whether head, the first bytes of a stream, looks like
	// this format. head holds at most [SniffLen] bytes and may be shorter
	// for tiny streams.
	Sniff(head []byte) bool

	// Open parses the stream's headers and returns a decoding reader.
	// The stream is positioned at its first byte; Open consumes it.
	Open(r io.Reader) (*Parsed, error)
}

// UnknownFormatError reports that no registered format recognised a stream.
type UnknownFormatError struct {
	// Hint is the caller-supplied format hint, if any.
	Hint string

	// Head is a copy of the sniffed leading bytes, kept for diagnostics.
	Head []byte
}

func (e *UnknownFormatError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("format: no registered format recognised the stream (hint %q, %d header bytes)", e.Hint, len(e.Head))
	}
	return fmt.Sprintf("format: no registered format recognised the stream (%d header bytes)", len(e.Head))
}

// Registry holds the formats probing considers, in registration order.
// Registration order doubles as probe precedence when several formats
// claim the same magic.
type Registry struct {
	mu      sync.RWMutex
	formats []Format
}

// NewRegistry returns a registry probing the given formats.
func NewRegistry(formats ...Format) *Registry {
	r := &Registry{}
	for _, f := range formats {
		r.Register(f)
	}
	return r
}

// Register appends f to the probe order.
func (r *Registry) Register(f Format) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formats = append(r.formats, f)
}

// Names lists the registered format names in probe order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.formats))
	for i, f := range r.formats {
		out[i] = f.Name()
	}
	return out
}

// Probe identifies the format of the stream on rd and opens it. The first
// [SniffLen] bytes are peeked without consuming them, each candidate gets
// to sniff, and the first match is opened. A non-empty hint (a format name
// or file extension, case-insensitive, without the dot) moves the hinted
// format to the front of the candidate order; it never overrides a
// negative sniff.
//
// Probe returns [*UnknownFormatError] when no format matches, and wraps
// the winning format's error when its Open fails. The stream cannot be
// reused after a failed Open; it may have been partially consumed.
func (r *Registry) Probe(rd io.Reader, hint string) (*Parsed, error) {
	br := bufio.NewReader(rd)
	head, err := br.Peek(SniffLen)
	if len(head) == 0 && err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("format: read stream head: %w", err)
	}

	for _, f := range r.candidates(hint) {
		if !f.Sniff(head) {
			continue
		}
		parsed, err := f.Open(br)
		if err != nil {
			return nil, fmt.Errorf("format: open as %s: %w", f.Name(), err)
		}
		return parsed, nil
	}

	return nil, &UnknownFormatError{Hint: hint, Head: append([]byte(nil), head...)}
}

// candidates returns the probe order for hint: the hinted format first,
// then the rest in registration order.
func (r *Registry) candidates(hint string) []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Format, 0, len(r.formats))
	hint = strings.ToLower(strings.TrimPrefix(hint, "."))
	if hint != "" {
		for _, f := range r.formats {
			if f.Name() == hint {
				out = append(out, f)
				break
			}
		}
	}
	for _, f := range r.formats {
		if len(out) > 0 && f == out[0] {
			continue
		}
		out = append(out, f)
	}
	return out
}
