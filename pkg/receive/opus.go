package receive

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/chorus-audio/chorus/pkg/voice"
)

// opusDecoder wraps a libopus decoder at the engine's canonical format.
type opusDecoder struct {
	dec *gopus.Decoder
}

var _ Decoder = (*opusDecoder)(nil)

// NewOpusDecoder returns the default [Decoder]: 48 kHz stereo Opus backed
// by libopus. It is the [DecoderFactory] a [Receiver] uses unless
// [WithDecoderFactory] overrides it.
func NewOpusDecoder() (Decoder, error) {
	dec, err := gopus.NewDecoder(voice.SampleRate, voice.Channels)
	if err != nil {
		return nil, fmt.Errorf("receive: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec}, nil
}

func (d *opusDecoder) Decode(payload []byte, fec bool) ([]int16, error) {
	pcm, err := d.dec.Decode(payload, voice.FrameSize, fec)
	if err != nil {
		return nil, fmt.Errorf("receive: opus decode: %w", err)
	}
	return pcm, nil
}
