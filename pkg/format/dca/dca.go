// Package dca decodes the DCA1 container: a JSON header followed by
// length-prefixed Opus frames.
package dca

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"layeh.com/gopus"

	"github.com/chorus-audio/chorus/pkg/format"
)

// maxHeaderLen bounds the JSON header so a corrupt length prefix cannot
// trigger a giant allocation.
const maxHeaderLen = 1 << 20

// header is the DCA1 JSON metadata payload. Only the sections the engine
// consumes are modelled; unknown sections are ignored.
type header struct {
	Opus struct {
		SampleRate int `json:"sample_rate"`
		Channels   int `json:"channels"`
		FrameSize  int `json:"frame_size"`
	} `json:"opus"`
	Info struct {
		Title  string `json:"title"`
		Artist string `json:"artist"`
		Album  string `json:"album"`
	} `json:"info"`
}

type dcaFormat struct{}

// New returns the DCA1 format for registry wiring.
func New() format.Format { return dcaFormat{} }

func (dcaFormat) Name() string { return "dca" }

func (dcaFormat) Sniff(head []byte) bool {
	return bytes.HasPrefix(head, []byte("DCA1"))
}

func (dcaFormat) Open(r io.Reader) (*format.Parsed, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("dca: read magic: %w", err)
	}
	if string(magic[:]) != "DCA1" {
		return nil, fmt.Errorf("dca: bad magic %q", magic[:])
	}

	var size int32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, fmt.Errorf("dca: read header length: %w", err)
	}
	if size <= 0 || size > maxHeaderLen {
		return nil, fmt.Errorf("dca: unreasonable header length %d", size)
	}

	raw := make([]byte, size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("dca: read header: %w", err)
	}
	var hdr header
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, fmt.Errorf("dca: parse header: %w", err)
	}

	sampleRate := hdr.Opus.SampleRate
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	channels := hdr.Opus.Channels
	if channels <= 0 {
		channels = 2
	}
	frameSize := hdr.Opus.FrameSize
	if frameSize <= 0 {
		frameSize = sampleRate / 50 // 20 ms
	}

	return &format.Parsed{
		Reader: &reader{
			src:        r,
			sampleRate: sampleRate,
			channels:   channels,
			frameSize:  frameSize,
		},
		Info: format.Info{
			Container:  "dca",
			Codec:      "opus",
			SampleRate: sampleRate,
			Channels:   channels,
		},
		Metadata: format.Metadata{
			Title:  hdr.Info.Title,
			Artist: hdr.Info.Artist,
			Album:  hdr.Info.Album,
		},
	}, nil
}

// reader decodes length-prefixed Opus frames. The Opus decoder is created
// on the first read so that header-only probing never touches codec state.
type reader struct {
	src        io.Reader
	sampleRate int
	channels   int
	frameSize  int

	dec   *gopus.Decoder
	pcm   []int16 // undrained tail of the last decoded frame
	frame []byte
}

func (r *reader) ReadPCM(dst []int16) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	for len(r.pcm) == 0 {
		if err := r.decodeNext(); err != nil {
			return 0, err
		}
	}
	n := copy(dst, r.pcm)
	r.pcm = r.pcm[n:]
	return n, nil
}

// decodeNext reads and decodes one frame into r.pcm.
func (r *reader) decodeNext() error {
	var flen int16
	if err := binary.Read(r.src, binary.LittleEndian, &flen); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("dca: read frame length: %w", err)
	}
	if flen <= 0 {
		return fmt.Errorf("dca: unreasonable frame length %d", flen)
	}

	if cap(r.frame) < int(flen) {
		r.frame = make([]byte, flen)
	}
	buf := r.frame[:flen]
	if _, err := io.ReadFull(r.src, buf); err != nil {
		return fmt.Errorf("dca: read frame: %w", err)
	}

	if r.dec == nil {
		dec, err := gopus.NewDecoder(r.sampleRate, r.channels)
		if err != nil {
			return fmt.Errorf("dca: create opus decoder: %w", err)
		}
		r.dec = dec
	}
	pcm, err := r.dec.Decode(buf, r.frameSize, false)
	if err != nil {
		return fmt.Errorf("dca: opus decode: %w", err)
	}
	r.pcm = pcm
	return nil
}

func (r *reader) Close() error { return nil }
