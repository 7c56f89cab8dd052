package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidHints lists the container hints the daemon's format registry knows.
// Used by [Validate] to warn about likely typos.
var ValidHints = []string{"wav", "mp3", "vorbis", "dca"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Driver
	if cfg.Driver.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("driver.tick_interval %s must not be negative", cfg.Driver.TickInterval.Std()))
	}
	if d := cfg.Driver.TickInterval.Std(); d > 0 && d < time.Millisecond {
		slog.Warn("driver.tick_interval is below 1ms; the loop may not hold this cadence", "interval", d)
	}
	if cfg.Driver.PromoteWorkers < 0 {
		errs = append(errs, fmt.Errorf("driver.promote_workers %d must not be negative", cfg.Driver.PromoteWorkers))
	}
	if cfg.Driver.RetryLimit < 0 {
		errs = append(errs, fmt.Errorf("driver.retry_limit %d must not be negative", cfg.Driver.RetryLimit))
	}

	// Receive
	if cfg.Receive.DecodeMode != "" && !cfg.Receive.DecodeMode.IsValid() {
		errs = append(errs, fmt.Errorf("receive.decode_mode %q is invalid; valid values: decode, pass", cfg.Receive.DecodeMode))
	}
	if cfg.Receive.PlayoutDepth < 0 || cfg.Receive.PlayoutDepth > 32 {
		errs = append(errs, fmt.Errorf("receive.playout_depth %d is out of range [0, 32]", cfg.Receive.PlayoutDepth))
	}

	// Discord
	if cfg.Discord.Token != "" {
		if cfg.Discord.GuildID == "" {
			errs = append(errs, errors.New("discord.guild_id is required when discord.token is set"))
		}
		if cfg.Discord.ChannelID == "" {
			errs = append(errs, errors.New("discord.channel_id is required when discord.token is set"))
		}
	}
	if cfg.Discord.Token == "" && len(cfg.Tracks) == 0 {
		slog.Warn("no discord connection and no tracks configured; the daemon will idle")
	}

	// Track duplicate name detection
	trackNamesSeen := make(map[string]int, len(cfg.Tracks))

	// Tracks
	for i := range cfg.Tracks {
		tr := &cfg.Tracks[i]
		prefix := fmt.Sprintf("tracks[%d]", i)
		if tr.Name != "" {
			if prev, ok := trackNamesSeen[tr.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of tracks[%d]", prefix, tr.Name, prev))
			}
			trackNamesSeen[tr.Name] = i
		}
		if !tr.Source.IsValid() {
			errs = append(errs, fmt.Errorf("%s.source %q is invalid; valid values: file, http, websocket", prefix, tr.Source))
		}

		// Source ↔ location cross-validation
		switch tr.Source {
		case SourceFile:
			if tr.Path == "" {
				errs = append(errs, fmt.Errorf("%s.path is required when source is file", prefix))
			}
		case SourceHTTP, SourceWebSocket:
			if tr.URL == "" {
				errs = append(errs, fmt.Errorf("%s.url is required when source is %s", prefix, tr.Source))
			}
		}

		if len(tr.Header) > 0 && tr.Source != SourceHTTP {
			slog.Warn("track header is only sent for http sources",
				"track", trackKey(tr),
				"source", tr.Source,
			)
		}
		validateHint(trackKey(tr), tr.Hint)
	}

	return errors.Join(errs...)
}

// validateHint logs a warning if hint is non-empty and not found in the
// [ValidHints] list.
func validateHint(track, hint string) {
	if hint == "" {
		return
	}
	if slices.Contains(ValidHints, strings.ToLower(hint)) {
		return
	}
	slog.Warn("unknown format hint — may be a typo or a format the daemon cannot probe",
		"track", track,
		"hint", hint,
		"known", ValidHints,
	)
}
