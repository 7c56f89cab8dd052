// Package vorbis decodes Ogg Vorbis streams.
package vorbis

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/chorus-audio/chorus/pkg/format"
)

type vorbisFormat struct{}

// New returns the Ogg Vorbis format for registry wiring.
func New() format.Format { return vorbisFormat{} }

func (vorbisFormat) Name() string { return "vorbis" }

func (vorbisFormat) Sniff(head []byte) bool {
	return bytes.HasPrefix(head, []byte("OggS"))
}

func (vorbisFormat) Open(r io.Reader) (*format.Parsed, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("vorbis: read headers: %w", err)
	}

	return &format.Parsed{
		Reader: &reader{dec: dec},
		Info: format.Info{
			Container:  "ogg",
			Codec:      "vorbis",
			SampleRate: dec.SampleRate(),
			Channels:   dec.Channels(),
		},
	}, nil
}

// reader converts the decoder's float samples into the engine's 16-bit
// form.
type reader struct {
	dec *oggvorbis.Reader
	buf []float32
}

func (r *reader) ReadPCM(dst []int16) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if cap(r.buf) < len(dst) {
		r.buf = make([]float32, len(dst))
	}

	n, err := r.dec.Read(r.buf[:len(dst)])
	if n > 0 {
		for i := 0; i < n; i++ {
			dst[i] = clamp(r.buf[i])
		}
		return n, nil
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("vorbis: decode: %w", err)
	}
	return 0, nil
}

func (r *reader) Close() error { return nil }

// clamp scales a [-1, 1] float sample to int16, saturating out-of-range
// values instead of wrapping.
func clamp(f float32) int16 {
	s := int32(f * 32767)
	if s > 32767 {
		return 32767
	}
	if s < -32768 {
		return -32768
	}
	return int16(s)
}
