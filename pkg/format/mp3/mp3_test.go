package mp3_test

import (
	"bytes"
	"testing"

	"github.com/chorus-audio/chorus/pkg/format/mp3"
)

func TestSniff(t *testing.T) {
	t.Parallel()

	f := mp3.New()
	cases := []struct {
		name string
		head []byte
		want bool
	}{
		{"id3v2 tag", []byte("ID3\x04\x00\x00\x00\x00\x00\x00"), true},
		{"frame sync", []byte{0xff, 0xfb, 0x90, 0x00}, true},
		{"frame sync mpeg2", []byte{0xff, 0xe2, 0x00, 0x00}, true},
		{"riff header", []byte("RIFFxxxxWAVE"), false},
		{"near sync", []byte{0xff, 0x1f}, false},
		{"empty", nil, false},
	}
	for _, tc := range cases {
		if got := f.Sniff(tc.head); got != tc.want {
			t.Errorf("Sniff(%s) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestOpen_RejectsGarbage(t *testing.T) {
	t.Parallel()

	// A valid empty ID3v2 tag followed by bytes that are not an MPEG frame.
	stream := append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), []byte("definitely not audio data")...)
	if _, err := mp3.New().Open(bytes.NewReader(stream)); err == nil {
		t.Fatalf("Open(garbage) error = nil, want error")
	}
}

func TestOpen_RejectsEmpty(t *testing.T) {
	t.Parallel()

	if _, err := mp3.New().Open(bytes.NewReader(nil)); err == nil {
		t.Fatalf("Open(empty) error = nil, want error")
	}
}
