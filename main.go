// Command ducchat runs the local chat relay: it joins a Twitch channel as
// an anonymous spectator, resolves custom emotes from FFZ/BTTV/7TV,
// segments every message, and fans the result out to overlay consumers
// over SSE. It:
//   - Loads configuration and initializes structured logging.
//   - Starts the local UI server with a stable-port preference for OBS.
//   - Reconnects to the last stored channel on startup.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ducchat/ducchat/chat"
	"github.com/ducchat/ducchat/config"
	"github.com/ducchat/ducchat/emotes"
	"github.com/ducchat/ducchat/server"
	"github.com/ducchat/ducchat/settings"
	"github.com/ducchat/ducchat/telemetry"
)

const version = "1.0.0"

func main() {
	// Load .env file if present (local dev convenience only)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("ducchat", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := settings.NewStore(cfg.SettingsPath)

	hub := server.NewHub()
	hub.SeedConfig(store.PseudoConfig())

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout + 2*time.Second}
	emoteOpts := []emotes.Option{emotes.WithProviderTimeout(cfg.ProviderTimeout)}
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		slog.Info("using Helix identity resolver")
		emoteOpts = append(emoteOpts, emotes.WithIdentityResolver(
			emotes.NewHelixResolver(cfg.TwitchClientID, cfg.TwitchClientSecret)))
	}
	catalogs := emotes.NewStore(cfg.EmoteCacheTTL, httpClient, emoteOpts...)

	session := chat.NewSession(hub, catalogs, nil)
	defer func() { _ = session.Disconnect() }()

	handlers := server.NewHandlers(hub, session, store, cfg.UIRootDir)
	if cfg.DevProxyTarget != "" {
		if err := handlers.SetProxyTarget(cfg.DevProxyTarget); err != nil {
			slog.Error("invalid UI_PROXY_TARGET", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("dev proxy enabled", slog.String("target", cfg.DevProxyTarget))
	}

	ln, err := server.Listen(cfg.ListenHost, cfg.PreferredPort)
	if err != nil {
		slog.Error("listen failed", slog.Any("err", err))
		os.Exit(1)
	}
	srv := server.NewServer(cfg.ListenHost, ln, server.NewMux(handlers))
	slog.Info("ui server listening",
		slog.String("url", srv.URL()),
		slog.String("overlay", srv.OverlayURL()),
		slog.Int("port", srv.Port()))

	// Rejoin the channel from the previous run, if any. Failure is not
	// fatal: the channel stays stored and the user can retry from the UI.
	if stored := store.Channel(); stored != "" {
		go func() {
			connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if _, err := session.Connect(connectCtx, stored); err != nil {
				slog.Warn("auto-connect failed", slog.String("channel", stored), slog.Any("err", err))
			}
		}()
	}

	if err := srv.Start(ctx); err != nil {
		slog.Error("http server failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
