package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qidu/webot/internal/adapter/chat"
	"github.com/qidu/webot/internal/adapter/gateway"
	"github.com/qidu/webot/internal/adapter/webui"
	"github.com/qidu/webot/internal/domain"
	"github.com/qidu/webot/internal/infra/config"
	"github.com/qidu/webot/internal/infra/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config
	cfgPath := flag.String("config", "webot.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Gateway session
	gw := gateway.NewSession(gateway.SessionConfig{
		URL:               cfg.Gateway.URL,
		Token:             cfg.Gateway.Token,
		Password:          cfg.Gateway.Password,
		ClientID:          cfg.Gateway.ClientID,
		DisplayName:       cfg.Gateway.DisplayName,
		Mode:              cfg.Gateway.Mode,
		Role:              cfg.Gateway.Role,
		Scopes:            cfg.Gateway.Scopes,
		RequestTimeout:    config.Duration(cfg.Gateway.RequestTimeout, gateway.DefaultRequestTimeout),
		ReconnectDelay:    config.Duration(cfg.Gateway.ReconnectDelay, gateway.DefaultReconnectDelay),
		MaxReconnectDelay: config.Duration(cfg.Gateway.MaxReconnectDelay, 0),
	}, log)

	// 4. Chat session on a log-backed surface
	chat.NewSession(gw, &logSurface{log: log}, cfg.Gateway.SessionKey, log)

	// 5. Web UI
	handler := webui.NewHandler(webui.Options{
		BasePath:     cfg.HTTP.BasePath,
		AssetsDir:    cfg.HTTP.AssetsDir,
		GatewayURL:   cfg.Gateway.URL,
		GatewayToken: cfg.Gateway.Token,
		ExposeToken:  cfg.HTTP.ExposeToken,
	}, log)

	srv := webui.NewServer(cfg.HTTP.Addr, webui.Chain(handler), cfg.HTTP.RequestsPerMin, cfg.HTTP.Burst, log)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("web ui: %w", err)
	}

	// 6. Connect. A dial failure is not fatal: the session keeps
	// rescheduling reconnect attempts until the gateway comes up.
	if err := gw.Connect(ctx); err != nil {
		log.Warn("initial gateway connect failed, will retry", "error", err)
	}

	log.Info("webot running", "gateway", cfg.Gateway.URL, "webui", srv.BoundAddr())

	<-ctx.Done()
	log.Info("shutting down")

	gw.Disconnect()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("web ui shutdown", "error", err)
	}
	return nil
}

// logSurface renders chat traffic to the structured log. The browser client
// talks to the gateway directly using the /api/config document; this surface
// keeps a server-side trace of the same session.
type logSurface struct {
	log *slog.Logger
}

func (s *logSurface) AppendMessage(msg domain.ChatMessage) {
	s.log.Info("chat message", "role", msg.Role, "content", msg.Content)
}

func (s *logSurface) SetLoading(loading bool) {
	s.log.Debug("chat loading", "loading", loading)
}

func (s *logSurface) ShowError(message string) {
	s.log.Warn("chat error", "message", message)
}
