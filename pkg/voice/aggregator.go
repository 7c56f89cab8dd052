package voice

import (
	"errors"
	"slices"
	"sync"
)

// ErrNoEvidence reports an attempt to record a speaker with neither a raw
// packet nor decoded audio. Such a record would claim activity without any
// proof of it.
var ErrNoEvidence = errors.New("voice: record carries neither packet nor pcm")

// Aggregator assembles [Tick] snapshots. Transport goroutines call
// [Aggregator.Record] as audio arrives; the tick clock calls
// [Aggregator.Finish] once per cadence interval to cut the snapshot and
// open the next one.
//
// All methods are safe for concurrent use. A Record racing a Finish lands
// cleanly in one tick or the other, never half in both.
type Aggregator struct {
	mu      sync.Mutex
	pending map[uint32]Data
	known   map[uint32]struct{}
}

// NewAggregator returns an empty aggregator with no known speakers.
func NewAggregator() *Aggregator {
	return &Aggregator{
		pending: make(map[uint32]Data),
		known:   make(map[uint32]struct{}),
	}
}

// Record stores evidence of one speaker's activity in the current tick.
// A second record for the same speaker within one tick replaces the first.
// Recording also marks the speaker as known, so once it goes quiet it shows
// up in the Silent set of later ticks.
//
// pkt and pcm may not both be nil; that returns [ErrNoEvidence] and records
// nothing.
func (a *Aggregator) Record(ssrc uint32, pkt *Packet, pcm []int16) error {
	if pkt == nil && pcm == nil {
		return ErrNoEvidence
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.known[ssrc] = struct{}{}
	a.pending[ssrc] = Data{Packet: pkt, PCM: pcm}
	return nil
}

// Watch marks a speaker as known without recording any audio for it.
// Use it when the transport announces a speaker before its first packet
// arrives, so ticks report the speaker as silent rather than unknown.
func (a *Aggregator) Watch(ssrc uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.known[ssrc] = struct{}{}
}

// Remove forgets a speaker entirely, including any evidence already
// recorded for the current tick. Call it only on a definitive leave signal
// from the transport; mere silence must never remove a speaker.
func (a *Aggregator) Remove(ssrc uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.known, ssrc)
	delete(a.pending, ssrc)
}

// Known returns the identifiers of all known speakers in ascending order.
func (a *Aggregator) Known() []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]uint32, 0, len(a.known))
	for ssrc := range a.known {
		out = append(out, ssrc)
	}
	slices.Sort(out)
	return out
}

// Finish cuts the current tick and resets the per-tick state. The returned
// snapshot is complete: every known speaker appears in exactly one of
// Speaking and Silent. The caller owns the returned maps.
func (a *Aggregator) Finish() Tick {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := Tick{
		Speaking: a.pending,
		Silent:   make(map[uint32]struct{}, len(a.known)),
	}
	for ssrc := range a.known {
		if _, ok := t.Speaking[ssrc]; !ok {
			t.Silent[ssrc] = struct{}{}
		}
	}
	a.pending = make(map[uint32]Data)
	return t
}
