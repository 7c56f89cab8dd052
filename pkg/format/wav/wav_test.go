package wav_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/chorus-audio/chorus/pkg/format/wav"
)

// wavBytes builds a canonical 44-byte RIFF/WAVE header followed by the
// given interleaved samples.
func wavBytes(samples []int16, rate int, channels, bits int) []byte {
	var buf bytes.Buffer
	dataLen := len(samples) * 2

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*channels*bits/8))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*bits/8))
	binary.Write(&buf, binary.LittleEndian, uint16(bits))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	for _, s := range samples {
		binary.Write(&buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

func TestSniff(t *testing.T) {
	t.Parallel()

	f := wav.New()
	if !f.Sniff(wavBytes(nil, 48000, 2, 16)[:12]) {
		t.Errorf("Sniff(RIFF/WAVE header) = false, want true")
	}
	if f.Sniff([]byte("OggS not a wave stream")) {
		t.Errorf("Sniff(ogg bytes) = true, want false")
	}
	if f.Sniff([]byte("RIFF")) {
		t.Errorf("Sniff(truncated header) = true, want false")
	}
}

func TestOpen_DecodesSamples(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 100, -100, 32767, -32768, 7, -7, 1234}
	parsed, err := wav.New().Open(bytes.NewReader(wavBytes(samples, 48000, 2, 16)))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer parsed.Reader.Close()

	if parsed.Info.Container != "wav" || parsed.Info.Codec != "pcm_s16le" {
		t.Errorf("Info = %+v, want wav/pcm_s16le", parsed.Info)
	}
	if parsed.Info.SampleRate != 48000 || parsed.Info.Channels != 2 {
		t.Errorf("Info = %+v, want 48000 Hz stereo", parsed.Info)
	}

	got := make([]int16, 0, len(samples))
	buf := make([]int16, 3)
	for {
		n, err := parsed.Reader.ReadPCM(buf)
		got = append(got, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadPCM() error = %v", err)
		}
	}
	if !bytes.Equal(int16le(got), int16le(samples)) {
		t.Errorf("decoded samples = %v, want %v", got, samples)
	}
}

func TestOpen_RejectsUnsupportedDepth(t *testing.T) {
	t.Parallel()

	_, err := wav.New().Open(bytes.NewReader(wavBytes([]int16{1, 2}, 48000, 2, 8)))
	if err == nil {
		t.Fatalf("Open(8-bit stream) error = nil, want error")
	}
}

func TestOpen_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := wav.New().Open(bytes.NewReader([]byte("RIFF followed by nonsense")))
	if err == nil {
		t.Fatalf("Open(garbage) error = nil, want error")
	}
}

// int16le renders samples as little-endian bytes so slices compare with a
// single bytes.Equal.
func int16le(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}
