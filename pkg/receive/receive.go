// Package receive turns raw per-speaker voice packets into per-tick
// aggregator records. Each speaker gets a small playout buffer that
// absorbs network jitter and reordering; a clock-out pass runs once per
// engine tick, decoding at most one frame per speaker and bridging
// isolated packet losses with Opus in-band FEC.
package receive

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/chorus-audio/chorus/pkg/voice"
)

// Mode selects how much work the receive layer does per packet.
type Mode int

const (
	// ModeDecode decodes every payload to PCM alongside the raw packet.
	ModeDecode Mode = iota

	// ModePass forwards raw packets only. No decoder state is kept and
	// lost frames are not concealed; concealment needs codec state.
	ModePass
)

// Decoder is one speaker's stateful audio decoder.
type Decoder interface {
	// Decode returns interleaved PCM for one packet payload. With fec set,
	// the payload's in-band correction data is decoded instead, which
	// reconstructs the frame immediately before it.
	Decode(payload []byte, fec bool) ([]int16, error)
}

// DecoderFactory builds a fresh decoder whenever a new speaker appears.
type DecoderFactory func() (Decoder, error)

const (
	// ringSize is the playout window per speaker, in frames. 65536 is an
	// exact multiple, so sequence wraparound keeps slot positions stable.
	ringSize = 64

	// defaultPlayoutDepth is how many frames buffer up before playout
	// starts for a new stream, trading 60 ms of latency for jitter slack.
	defaultPlayoutDepth = 3

	// staleTicks is how many empty ticks a stream's decode state survives
	// before it is pruned. The speaker itself stays known; only codec and
	// buffer state is dropped. 15000 ticks is five minutes.
	staleTicks = 15000
)

var errNilPacket = errors.New("receive: nil packet")

// Option configures a [Receiver].
type Option func(*Receiver)

// WithMode selects the per-packet work mode. The default is [ModeDecode].
func WithMode(m Mode) Option {
	return func(r *Receiver) { r.mode = m }
}

// WithDecoderFactory replaces the default Opus decoder constructor.
func WithDecoderFactory(f DecoderFactory) Option {
	return func(r *Receiver) { r.factory = f }
}

// WithPlayoutDepth sets how many frames buffer up before a new stream
// starts playing out, between 1 and half the playout window.
func WithPlayoutDepth(n int) Option {
	return func(r *Receiver) {
		if n >= 1 && n <= ringSize/2 {
			r.depth = n
		}
	}
}

// Receiver feeds one [voice.Aggregator] from per-speaker packet streams.
// Transport goroutines call [Receiver.Push] as packets arrive; the engine
// clock calls [Receiver.Tick] once per cadence interval, before the
// aggregator snapshot is cut. All methods are safe for concurrent use.
type Receiver struct {
	agg     *voice.Aggregator
	mode    Mode
	factory DecoderFactory
	depth   int

	mu      sync.Mutex
	streams map[uint32]*stream
}

// stream is the per-speaker playout and decode state.
type stream struct {
	dec Decoder // nil in pass mode or when the factory failed

	ring     [ringSize]*voice.Packet
	next     uint16 // sequence number the playout clock expects
	buffered int    // packets queued at or ahead of the clock
	warm     bool   // playout holds off until depth frames buffered
	idle     int    // consecutive ticks with nothing buffered
}

// New returns a receiver recording into agg.
func New(agg *voice.Aggregator, opts ...Option) *Receiver {
	r := &Receiver{
		agg:     agg,
		mode:    ModeDecode,
		factory: NewOpusDecoder,
		depth:   defaultPlayoutDepth,
		streams: make(map[uint32]*stream),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Watch marks a speaker as known before any packet arrives, so ticks
// report it as silent rather than unknown.
func (r *Receiver) Watch(ssrc uint32) {
	r.agg.Watch(ssrc)
}

// Remove drops a speaker's decode state and forgets it in the aggregator.
// Call it on a definitive leave signal from the transport.
func (r *Receiver) Remove(ssrc uint32) {
	r.mu.Lock()
	delete(r.streams, ssrc)
	r.mu.Unlock()
	r.agg.Remove(ssrc)
}

// Push queues one packet into its speaker's playout buffer. The first
// packet from an unseen SSRC makes the speaker known. Packets behind the
// playout clock are dropped; a packet far ahead of it resets the stream.
func (r *Receiver) Push(pkt *voice.Packet) error {
	if pkt == nil {
		return errNilPacket
	}
	r.agg.Watch(pkt.SSRC)

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.streams[pkt.SSRC]
	if !ok {
		st = &stream{next: pkt.Sequence}
		if r.mode == ModeDecode {
			dec, err := r.factory()
			if err != nil {
				slog.Error("voice decoder unavailable, stream passes through undecoded",
					"ssrc", pkt.SSRC, "error", err)
			} else {
				st.dec = dec
			}
		}
		r.streams[pkt.SSRC] = st
	}
	st.idle = 0

	dist := int16(pkt.Sequence - st.next)
	switch {
	case dist < 0:
		// Behind the clock: the tick for this frame already passed.
		return nil
	case int(dist) >= ringSize:
		// Too far ahead to be jitter. Restart the stream at this packet.
		st.ring = [ringSize]*voice.Packet{}
		st.next = pkt.Sequence
		st.buffered = 0
		st.warm = false
	}

	idx := pkt.Sequence % ringSize
	if st.ring[idx] == nil {
		st.buffered++
	}
	st.ring[idx] = pkt
	if !st.warm && st.buffered >= r.depth {
		st.warm = true
	}
	return nil
}

// Tick advances every speaker's playout clock by one frame and records the
// results into the aggregator. Run it once per engine tick, before the
// aggregator snapshot is cut.
func (r *Receiver) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ssrc, st := range r.streams {
		st.idle++
		if st.idle > staleTicks {
			delete(r.streams, ssrc)
			continue
		}
		if !st.warm || st.buffered == 0 {
			// Before warmup and between talk spurts the clock idles,
			// waiting for packets instead of drifting past them.
			continue
		}

		idx := st.next % ringSize
		if pkt := st.ring[idx]; pkt != nil && pkt.Sequence == st.next {
			st.ring[idx] = nil
			st.buffered--
			st.next++
			r.play(ssrc, st, pkt)
			continue
		}

		// A frame is missing mid-spurt. If its successor already arrived,
		// its FEC data reconstructs exactly this frame.
		r.conceal(ssrc, st)
		st.next++
	}
}

// play decodes and records one on-time packet.
func (r *Receiver) play(ssrc uint32, st *stream, pkt *voice.Packet) {
	if r.mode != ModeDecode || st.dec == nil {
		if err := r.agg.Record(ssrc, pkt, nil); err != nil {
			slog.Warn("voice record rejected", "ssrc", ssrc, "error", err)
		}
		return
	}

	pcm, err := st.dec.Decode(pkt.Payload, false)
	if err != nil {
		slog.Warn("voice decode failed, keeping raw packet", "ssrc", ssrc, "error", err)
		pcm = nil
	}
	if err := r.agg.Record(ssrc, pkt, pcm); err != nil {
		slog.Warn("voice record rejected", "ssrc", ssrc, "error", err)
	}
}

// conceal reconstructs the frame the clock expected from the FEC data of
// its successor, when that successor is already buffered. The record has
// no packet: the evidence is synthetic audio, not network bytes.
func (r *Receiver) conceal(ssrc uint32, st *stream) {
	if r.mode != ModeDecode || st.dec == nil {
		return
	}
	succIdx := (st.next + 1) % ringSize
	succ := st.ring[succIdx]
	if succ == nil || succ.Sequence != st.next+1 {
		return
	}

	pcm, err := st.dec.Decode(succ.Payload, true)
	if err != nil {
		slog.Debug("fec concealment failed", "ssrc", ssrc, "error", err)
		return
	}
	if err := r.agg.Record(ssrc, nil, pcm); err != nil {
		slog.Warn("voice record rejected", "ssrc", ssrc, "error", err)
	}
}
