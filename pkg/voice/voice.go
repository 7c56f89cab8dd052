// Package voice defines the engine's clock constants, the per-speaker voice
// data types, and the aggregator that cuts one atomic snapshot of all
// speaker activity per tick.
package voice

import "time"

const (
	// SampleRate is the PCM sample rate used throughout the engine.
	SampleRate = 48000

	// Channels is the channel count of interleaved PCM produced by the engine.
	Channels = 2

	frameMs = 20

	// FrameSize is the number of samples per channel in one tick of audio.
	FrameSize = SampleRate * frameMs / 1000 // 960 samples per channel

	// TickSamples is the number of interleaved samples in one full stereo tick.
	TickSamples = FrameSize * Channels

	// TickDuration is the engine cadence. Every tick accounts for this much
	// wall-clock time and this much audio.
	TickDuration = frameMs * time.Millisecond
)

// Packet is one raw voice packet as it arrived from the transport, header
// fields included.
type Packet struct {
	// SSRC identifies the speaker within the session.
	SSRC uint32

	// Sequence is the transport's per-speaker packet counter. Consecutive
	// packets from one speaker carry consecutive sequence numbers, so gaps
	// reveal loss.
	Sequence uint16

	// Timestamp is the RTP timestamp of the first sample in the payload.
	Timestamp uint32

	// Payload is the encoded audio, normally one 20 ms Opus frame.
	Payload []byte
}

// Data is the evidence of one speaker's activity within a single tick.
// At least one field is set: a concealed frame carries PCM with no Packet,
// and a packet that was never decoded carries Packet with no PCM.
type Data struct {
	// Packet is the raw packet, when one arrived.
	Packet *Packet

	// PCM is the decoded interleaved stereo audio for this tick, when
	// decoding produced any.
	PCM []int16
}

// Tick is the snapshot cut once per [TickDuration]. The two sets are
// disjoint, and together they cover every speaker the engine knows about:
// consumers can treat absence from Speaking plus presence in Silent as a
// positive "this speaker said nothing" signal rather than missing data.
type Tick struct {
	// Speaking maps each speaker that produced audio this tick to its
	// evidence.
	Speaking map[uint32]Data

	// Silent holds every known speaker that produced nothing this tick.
	Silent map[uint32]struct{}
}
