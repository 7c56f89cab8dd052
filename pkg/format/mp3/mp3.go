// Package mp3 decodes MPEG-1 Layer III streams.
package mp3

import (
	"bytes"
	"fmt"
	"io"
	"time"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/chorus-audio/chorus/pkg/format"
)

type mp3Format struct{}

// New returns the MP3 format for registry wiring.
func New() format.Format { return mp3Format{} }

func (mp3Format) Name() string { return "mp3" }

// Sniff accepts an ID3v2 tag or a bare MPEG frame sync.
func (mp3Format) Sniff(head []byte) bool {
	if bytes.HasPrefix(head, []byte("ID3")) {
		return true
	}
	return len(head) >= 2 && head[0] == 0xff && head[1]&0xe0 == 0xe0
}

func (mp3Format) Open(r io.Reader) (*format.Parsed, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3: read headers: %w", err)
	}

	var meta format.Metadata
	if n := dec.Length(); n > 0 {
		// Length is the decoded size in bytes, 4 bytes per stereo sample.
		meta.Duration = time.Duration(n/4) * time.Second / time.Duration(dec.SampleRate())
	}

	return &format.Parsed{
		Reader: &reader{dec: dec},
		Info: format.Info{
			Container:  "mp3",
			Codec:      "mp3",
			SampleRate: dec.SampleRate(),
			// The decoder always emits stereo, upmixing mono sources.
			Channels: 2,
		},
		Metadata: meta,
	}, nil
}

// reader converts the decoder's little-endian byte stream into samples.
type reader struct {
	dec *gomp3.Decoder
	buf []byte
}

func (r *reader) ReadPCM(dst []int16) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	need := len(dst) * 2
	if cap(r.buf) < need {
		r.buf = make([]byte, need)
	}
	p := r.buf[:need]

	n, err := io.ReadFull(r.dec, p)
	if n >= 2 {
		samples := n / 2
		for i := 0; i < samples; i++ {
			dst[i] = int16(p[2*i]) | int16(p[2*i+1])<<8
		}
		return samples, nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return 0, io.EOF
	}
	if err != nil {
		return 0, fmt.Errorf("mp3: decode: %w", err)
	}
	return 0, nil
}

func (r *reader) Close() error { return nil }
