// Command chorusd is the main entry point for the Chorus voice-channel audio daemon.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chorus-audio/chorus/internal/config"
	"github.com/chorus-audio/chorus/internal/health"
	"github.com/chorus-audio/chorus/internal/observe"
	"github.com/chorus-audio/chorus/pkg/driver"
	"github.com/chorus-audio/chorus/pkg/format"
	"github.com/chorus-audio/chorus/pkg/format/dca"
	"github.com/chorus-audio/chorus/pkg/format/mp3"
	"github.com/chorus-audio/chorus/pkg/format/vorbis"
	"github.com/chorus-audio/chorus/pkg/format/wav"
	"github.com/chorus-audio/chorus/pkg/input"
	"github.com/chorus-audio/chorus/pkg/receive"
	discordrx "github.com/chorus-audio/chorus/pkg/receive/discord"
	"github.com/chorus-audio/chorus/pkg/voice"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "chorusd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "chorusd: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("chorusd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "chorusd",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Engine ────────────────────────────────────────────────────────────────
	reg := format.NewRegistry(wav.New(), mp3.New(), vorbis.New(), dca.New())
	d := driver.New(newDriverConfig(ctx, cfg, reg, metrics))

	var rxOpts []receive.Option
	if cfg.Receive.DecodeMode == config.DecodeModePass {
		rxOpts = append(rxOpts, receive.WithMode(receive.ModePass))
	}
	if cfg.Receive.PlayoutDepth > 0 {
		rxOpts = append(rxOpts, receive.WithPlayoutDepth(cfg.Receive.PlayoutDepth))
	}
	rx := receive.New(d.Aggregator(), rxOpts...)
	d.Attach(rx)

	// ── Discord (optional) ────────────────────────────────────────────────────
	var (
		session *discordgo.Session
		vc      *discordgo.VoiceConnection
		adapter *discordrx.Adapter
	)
	if cfg.Discord.Token != "" {
		session, vc, adapter, err = connectDiscord(cfg, rx)
		if err != nil {
			slog.Error("failed to connect to discord", "err", err)
			return 1
		}
		slog.Info("discord voice connected",
			"guild_id", cfg.Discord.GuildID,
			"channel_id", cfg.Discord.ChannelID,
		)
	}

	// ── Tracks ────────────────────────────────────────────────────────────────
	for i := range cfg.Tracks {
		t := &cfg.Tracks[i]
		c := trackComposer(t)
		if c == nil {
			continue
		}
		d.Enqueue(input.New(c))
		metrics.ActiveInputs.Add(ctx, 1)
		slog.Info("track enqueued", "track", t.Label(), "source", t.Source)
	}

	// ── Ops HTTP server ───────────────────────────────────────────────────────
	var srv *http.Server
	if cfg.Server.ListenAddr != "" {
		srv = newOpsServer(cfg, d, vc, metrics)
		go func() {
			if err := listenOps(srv, cfg.Server.TLS); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("ops server error", "err", err)
			}
		}()
		slog.Info("ops server listening", "addr", cfg.Server.ListenAddr)
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(level, config.Diff(old, new))
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, reg)

	slog.Info("chorusd ready — press Ctrl+C to shut down")

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if adapter != nil {
		adapter.Close()
	}
	if vc != nil {
		if err := vc.Disconnect(); err != nil {
			slog.Warn("voice disconnect error", "err", err)
		}
	}
	if session != nil {
		if err := session.Close(); err != nil {
			slog.Warn("discord session close error", "err", err)
		}
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("ops server shutdown error", "err", err)
		}
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return 0
}

// ── Driver wiring ─────────────────────────────────────────────────────────────

// newDriverConfig assembles the tick loop configuration: registry, cadence
// and retry policy from cfg, plus callbacks that feed telemetry.
func newDriverConfig(ctx context.Context, cfg *config.Config, reg *format.Registry, m *observe.Metrics) driver.Config {
	var activeSpeakers int64
	return driver.Config{
		TickInterval:   cfg.Driver.TickInterval.Std(),
		Registry:       reg,
		PromoteWorkers: cfg.Driver.PromoteWorkers,
		RetryLimit:     cfg.Driver.RetryLimit,

		OnTick: func(tick voice.Tick) {
			var speaking, concealed int64
			for _, data := range tick.Speaking {
				if data.Packet != nil {
					speaking++
				} else {
					concealed++
				}
			}
			m.RecordVoiceFrames(ctx, "speaking", speaking)
			m.RecordVoiceFrames(ctx, "concealed", concealed)
			if delta := int64(len(tick.Speaking)) - activeSpeakers; delta != 0 {
				m.ActiveSpeakers.Add(ctx, delta)
				activeSpeakers += delta
			}
		},

		OnReady: func(in *input.Input) {
			m.ActiveInputs.Add(ctx, -1)
			m.RecordPromotion(ctx, "ready")
			info := in.Parsed().Info
			args := []any{
				"container", info.Container,
				"codec", info.Codec,
				"sample_rate", info.SampleRate,
				"channels", info.Channels,
			}
			if meta, err := in.Metadata(); err == nil && meta.Title != "" {
				args = append(args, "title", meta.Title)
			}
			slog.Info("input ready", args...)
		},

		OnInputError: func(in *input.Input, err error) {
			m.ActiveInputs.Add(ctx, -1)
			m.RecordPromotion(ctx, "abandoned")
			m.RecordInputError(ctx, inputErrorReason(err))
			slog.Error("input abandoned", "state", in.State(), "err", err)
			if cerr := in.Close(); cerr != nil {
				slog.Warn("input close failed", "err", cerr)
			}
		},

		AfterTick: func(took time.Duration) {
			m.TickDuration.Record(ctx, took.Seconds())
		},
	}
}

// inputErrorReason classifies an abandoned input's final error for metrics.
func inputErrorReason(err error) string {
	if errors.Is(err, input.ErrParsePanicked) {
		return "panicked"
	}
	if _, ok := input.RetryDelay(err); ok {
		return "retry_limit"
	}
	return "permanent"
}

// ── Track wiring ──────────────────────────────────────────────────────────────

// trackComposer builds the lazy composer for one configured track. Returns
// nil for source kinds that validation should have rejected.
func trackComposer(t *config.TrackConfig) input.Composer {
	switch t.Source {
	case config.SourceFile:
		return &input.File{Path: t.Path}
	case config.SourceHTTP:
		return &input.HTTP{URL: t.URL, Header: headerFromConfig(t.Header), Hint: t.Hint}
	case config.SourceWebSocket:
		return &input.WebSocket{URL: t.URL, Hint: t.Hint}
	}
	return nil
}

// headerFromConfig converts the flat config header map into an http.Header.
func headerFromConfig(h map[string]string) http.Header {
	if len(h) == 0 {
		return nil
	}
	header := make(http.Header, len(h))
	for k, v := range h {
		header.Set(k, v)
	}
	return header
}

// ── Discord wiring ────────────────────────────────────────────────────────────

// connectDiscord opens a gateway session, joins the configured voice channel
// muted but undeafened, and bridges inbound voice packets into rx.
func connectDiscord(cfg *config.Config, rx *receive.Receiver) (*discordgo.Session, *discordgo.VoiceConnection, *discordrx.Adapter, error) {
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates

	if err := session.Open(); err != nil {
		return nil, nil, nil, fmt.Errorf("discord: open session: %w", err)
	}

	vc, err := session.ChannelVoiceJoin(cfg.Discord.GuildID, cfg.Discord.ChannelID, true, false)
	if err != nil {
		session.Close()
		return nil, nil, nil, fmt.Errorf("discord: join voice channel: %w", err)
	}

	return session, vc, discordrx.New(session, vc, rx), nil
}

// ── Ops endpoints ─────────────────────────────────────────────────────────────

// newOpsServer assembles the operational endpoints: health probes, Prometheus
// metrics and a JSON snapshot of driver statistics.
func newOpsServer(cfg *config.Config, d *driver.Driver, vc *discordgo.VoiceConnection, m *observe.Metrics) *http.Server {
	checkers := []health.Checker{{
		Name: "driver",
		Check: func(context.Context) error {
			if d.Stats().Ticks == 0 {
				return errors.New("tick loop not running")
			}
			return nil
		},
	}}
	if vc != nil {
		checkers = append(checkers, health.Checker{
			Name: "discord",
			Check: func(context.Context) error {
				vc.RLock()
				ready := vc.Ready
				vc.RUnlock()
				if !ready {
					return errors.New("voice gateway not connected")
				}
				return nil
			},
		})
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(d.Stats()); err != nil {
			http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
		}
	})

	return &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(m)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenOps(srv *http.Server, tls *config.TLSConfig) error {
	if tls != nil {
		return srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	}
	return srv.ListenAndServe()
}

// ── Config reload ─────────────────────────────────────────────────────────────

// applyConfigChange reacts to a config reload. Only the log level takes
// effect live; track changes are logged and need a restart.
func applyConfigChange(level *slog.LevelVar, diff config.ConfigDiff) {
	if diff.LogLevelChanged {
		level.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	for _, tc := range diff.TrackChanges {
		switch {
		case tc.Added:
			slog.Info("track added in config, restart to enqueue", "track", tc.Key)
		case tc.Removed:
			slog.Info("track removed from config, restart to apply", "track", tc.Key)
		default:
			slog.Info("track changed in config, restart to apply", "track", tc.Key)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, reg *format.Registry) {
	tick := cfg.Driver.TickInterval.Std()
	if tick == 0 {
		tick = voice.TickDuration
	}
	mode := cfg.Receive.DecodeMode
	if mode == "" {
		mode = config.DecodeModeDecode
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Chorus — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Formats", strings.Join(reg.Names(), " "))
	printRow("Tick interval", tick.String())
	printRow("Decode mode", string(mode))
	if cfg.Discord.Token != "" {
		printRow("Discord", "connected")
	} else {
		printRow("Discord", "(disabled)")
	}
	printRow("Tracks", strconv.Itoa(len(cfg.Tracks)))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s : %-19s ║\n", label, value)
}

// ── Logger ────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
