// Package config provides the configuration schema, loader, and file
// watcher for the chorus daemon.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the chorus daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// DecodeMode selects how much work the inbound voice path does per packet.
type DecodeMode string

const (
	// DecodeModeDecode decodes every packet to PCM alongside the raw bytes.
	DecodeModeDecode DecodeMode = "decode"

	// DecodeModePass forwards raw packets without touching a decoder.
	DecodeModePass DecodeMode = "pass"
)

// IsValid reports whether m is a recognised decode mode.
func (m DecodeMode) IsValid() bool {
	return m == DecodeModeDecode || m == DecodeModePass
}

// Source selects the backend used to open a configured track.
type Source string

const (
	SourceFile      Source = "file"
	SourceHTTP      Source = "http"
	SourceWebSocket Source = "websocket"
)

// IsValid reports whether s is a recognised track source.
func (s Source) IsValid() bool {
	switch s {
	case SourceFile, SourceHTTP, SourceWebSocket:
		return true
	}
	return false
}

// Duration is a time.Duration that unmarshals from YAML strings such as
// "20ms" or "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for the chorus daemon.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Driver  DriverConfig  `yaml:"driver"`
	Receive ReceiveConfig `yaml:"receive"`
	Discord DiscordConfig `yaml:"discord"`
	Tracks  []TrackConfig `yaml:"tracks"`
}

// ServerConfig holds network and logging settings for the ops endpoint
// serving metrics, health, and stats.
type ServerConfig struct {
	// ListenAddr is the TCP address the ops endpoint listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the ops endpoint. When nil, it runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// DriverConfig tunes the tick loop.
type DriverConfig struct {
	// TickInterval is the scheduling cadence. Defaults to 20ms, the
	// length of one audio frame.
	TickInterval Duration `yaml:"tick_interval"`

	// PromoteWorkers bounds how many inputs may be created and parsed
	// concurrently. Defaults to 4.
	PromoteWorkers int `yaml:"promote_workers"`

	// RetryLimit caps promotion attempts per input before the input is
	// abandoned. Defaults to 10.
	RetryLimit int `yaml:"retry_limit"`
}

// ReceiveConfig tunes the inbound voice path.
type ReceiveConfig struct {
	// DecodeMode selects per-packet work.
	DecodeMode DecodeMode `yaml:"decode_mode"`

	// PlayoutDepth is how many frames buffer per speaker before playout
	// starts. Higher values ride out more jitter at the cost of latency.
	// Defaults to 3.
	PlayoutDepth int `yaml:"playout_depth"`
}

// DiscordConfig connects the daemon to one voice channel. When Token is
// empty the daemon runs without Discord and only plays configured tracks.
type DiscordConfig struct {
	// Token is the bot token, without the "Bot " prefix.
	Token string `yaml:"token"`

	// GuildID is the guild holding the voice channel.
	GuildID string `yaml:"guild_id"`

	// ChannelID is the voice channel to join.
	ChannelID string `yaml:"channel_id"`
}

// TrackConfig describes a single audio input queued at startup.
type TrackConfig struct {
	// Name identifies the track in logs and diffs. Optional; unnamed
	// tracks are identified by their path or URL.
	Name string `yaml:"name"`

	// Source selects the backend used to open the track.
	Source Source `yaml:"source"`

	// Path is the local file path. Used when Source is "file".
	Path string `yaml:"path"`

	// URL is the remote address. Used when Source is "http" or "websocket".
	URL string `yaml:"url"`

	// Hint names the expected container format (e.g., "wav", "mp3").
	// Optional; content sniffing decides either way.
	Hint string `yaml:"hint"`

	// Header holds extra HTTP headers sent when Source is "http". May be nil.
	Header map[string]string `yaml:"header"`
}

// Label returns the identifier used for this track in logs and diffs: the
// name when set, otherwise the path or URL.
func (t *TrackConfig) Label() string { return trackKey(t) }
