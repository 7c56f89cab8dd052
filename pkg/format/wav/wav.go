// Package wav decodes RIFF/WAVE streams carrying 16-bit PCM.
package wav

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/chorus-audio/chorus/pkg/format"
)

type wavFormat struct{}

// New returns the RIFF/WAVE format for registry wiring.
func New() format.Format { return wavFormat{} }

func (wavFormat) Name() string { return "wav" }

func (wavFormat) Sniff(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[0:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WAVE"))
}

func (wavFormat) Open(r io.Reader) (*format.Parsed, error) {
	// The RIFF parser needs random access between chunks and live streams
	// cannot seek, so the whole stream is buffered up front.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("wav: buffer stream: %w", err)
	}

	dec := gowav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		if dec.Err() != nil {
			return nil, fmt.Errorf("wav: read header: %w", dec.Err())
		}
		return nil, errors.New("wav: not a valid RIFF/WAVE stream")
	}
	if dec.WavAudioFormat != 1 || dec.BitDepth != 16 {
		return nil, fmt.Errorf("wav: only 16-bit PCM is supported (audio format %d, %d bit)", dec.WavAudioFormat, dec.BitDepth)
	}

	return &format.Parsed{
		Reader: &reader{dec: dec, buf: &audio.IntBuffer{}},
		Info: format.Info{
			Container:  "wav",
			Codec:      "pcm_s16le",
			SampleRate: int(dec.SampleRate),
			Channels:   int(dec.NumChans),
		},
		Metadata: readMetadata(data),
	}, nil
}

// readMetadata extracts LIST/INFO tags and the total duration using a
// throwaway decoder. Tag scanning drains the chunk list, so it must not run
// on the decoder used for sample reads.
func readMetadata(data []byte) format.Metadata {
	dec := gowav.NewDecoder(bytes.NewReader(data))

	var meta format.Metadata
	if d, err := dec.Duration(); err == nil {
		meta.Duration = d
	}
	dec.ReadMetadata()
	if dec.Metadata != nil {
		meta.Title = dec.Metadata.Title
		meta.Artist = dec.Metadata.Artist
		meta.Album = dec.Metadata.Product
		meta.Date = dec.Metadata.CreationDate
	}
	return meta
}

// reader adapts the chunk decoder to the engine's sample interface.
type reader struct {
	dec *gowav.Decoder
	buf *audio.IntBuffer
}

func (r *reader) ReadPCM(dst []int16) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if cap(r.buf.Data) < len(dst) {
		r.buf.Data = make([]int, len(dst))
	}
	r.buf.Data = r.buf.Data[:len(dst)]

	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("wav: read samples: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(r.buf.Data[i])
	}
	return n, nil
}

func (r *reader) Close() error { return nil }
