package vorbis_test

import (
	"bytes"
	"testing"

	"github.com/chorus-audio/chorus/pkg/format/vorbis"
)

func TestSniff(t *testing.T) {
	t.Parallel()

	f := vorbis.New()
	if !f.Sniff([]byte("OggS\x00\x02 capture pattern")) {
		t.Errorf("Sniff(ogg page header) = false, want true")
	}
	if f.Sniff([]byte("RIFFxxxxWAVE")) {
		t.Errorf("Sniff(riff bytes) = true, want false")
	}
	if f.Sniff([]byte("Og")) {
		t.Errorf("Sniff(truncated magic) = true, want false")
	}
}

func TestOpen_RejectsBrokenStream(t *testing.T) {
	t.Parallel()

	// A correct capture pattern but no usable Vorbis headers behind it.
	stream := append([]byte("OggS"), bytes.Repeat([]byte{0x13}, 64)...)
	if _, err := vorbis.New().Open(bytes.NewReader(stream)); err == nil {
		t.Fatalf("Open(broken stream) error = nil, want error")
	}
}

func TestOpen_RejectsEmpty(t *testing.T) {
	t.Parallel()

	if _, err := vorbis.New().Open(bytes.NewReader(nil)); err == nil {
		t.Fatalf("Open(empty) error = nil, want error")
	}
}
