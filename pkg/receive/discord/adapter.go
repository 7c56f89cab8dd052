// Package discord bridges a discordgo voice connection into the engine's
// receive layer.
package discord

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/chorus-audio/chorus/pkg/receive"
	"github.com/chorus-audio/chorus/pkg/voice"
)

// Adapter pumps voice packets and speaker lifecycle signals from a joined
// Discord voice channel into a [receive.Receiver]. Speaking updates bind
// SSRCs to user IDs ahead of the first packet; a user leaving the channel
// is the definitive signal that removes their speaker.
type Adapter struct {
	vc *discordgo.VoiceConnection
	rx *receive.Receiver

	mu    sync.RWMutex
	users map[uint32]string // SSRC -> user ID, learned from speaking updates
	ssrcs map[string]uint32 // user ID -> SSRC, for leave handling

	done          chan struct{}
	closeOnce     sync.Once
	removeHandler func() // removes the VoiceStateUpdate handler
}

// New wires vc into rx and starts the packet pump. session is watched for
// voice state updates so channel leaves reach the receiver; the handler is
// removed again by [Adapter.Close].
func New(session *discordgo.Session, vc *discordgo.VoiceConnection, rx *receive.Receiver) *Adapter {
	a := &Adapter{
		vc:    vc,
		rx:    rx,
		users: make(map[uint32]string),
		ssrcs: make(map[string]uint32),
		done:  make(chan struct{}),
	}

	vc.AddHandler(a.handleSpeakingUpdate)
	a.removeHandler = session.AddHandler(a.handleVoiceStateUpdate)

	go a.recvLoop()
	return a
}

// Close stops the packet pump and detaches the session handler. The voice
// connection itself belongs to the caller. Safe to call more than once.
func (a *Adapter) Close() {
	a.closeOnce.Do(func() {
		close(a.done)
		if a.removeHandler != nil {
			a.removeHandler()
		}
	})
}

// UserID resolves an SSRC to the Discord user it belongs to. Before the
// speaking update arrives the SSRC is all we have, so unknown speakers
// come back as the SSRC in decimal.
func (a *Adapter) UserID(ssrc uint32) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if id, ok := a.users[ssrc]; ok {
		return id
	}
	return strconv.FormatUint(uint64(ssrc), 10)
}

// recvLoop pumps packets from the voice connection into the receiver until
// the adapter closes or Discord closes the packet channel.
func (a *Adapter) recvLoop() {
	for {
		select {
		case <-a.done:
			return
		case pkt, ok := <-a.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}
			a.handlePacket(pkt)
		}
	}
}

// handlePacket translates one wire packet into the engine's form.
func (a *Adapter) handlePacket(pkt *discordgo.Packet) {
	err := a.rx.Push(&voice.Packet{
		SSRC:      pkt.SSRC,
		Sequence:  pkt.Sequence,
		Timestamp: pkt.Timestamp,
		Payload:   pkt.Opus,
	})
	if err != nil {
		slog.Warn("discord: voice packet rejected", "ssrc", pkt.SSRC, "error", err)
	}
}

// handleSpeakingUpdate learns the SSRC of a user. Discord announces the
// binding before the first packet, so the speaker becomes known (and shows
// up as silent) right away.
func (a *Adapter) handleSpeakingUpdate(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
	if su == nil || su.SSRC < 0 {
		return
	}
	ssrc := uint32(su.SSRC)

	a.mu.Lock()
	a.users[ssrc] = su.UserID
	a.ssrcs[su.UserID] = ssrc
	a.mu.Unlock()

	a.rx.Watch(ssrc)
}

// handleVoiceStateUpdate watches for users leaving our channel. Going
// quiet never removes a speaker; leaving does.
func (a *Adapter) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.GuildID != a.vc.GuildID {
		return
	}
	channelID := a.vc.ChannelID
	if vsu.BeforeUpdate == nil || vsu.BeforeUpdate.ChannelID != channelID || vsu.ChannelID == channelID {
		return
	}

	a.mu.Lock()
	ssrc, known := a.ssrcs[vsu.UserID]
	if known {
		delete(a.ssrcs, vsu.UserID)
		delete(a.users, ssrc)
	}
	a.mu.Unlock()

	if known {
		slog.Info("discord: speaker left voice channel", "user", vsu.UserID, "ssrc", ssrc)
		a.rx.Remove(ssrc)
	}
}
