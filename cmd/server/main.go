package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/punchcam/backend/internal/broker"
	"github.com/punchcam/backend/internal/classify"
	"github.com/punchcam/backend/internal/config"
	"github.com/punchcam/backend/internal/engine"
	"github.com/punchcam/backend/internal/httpapi"
	"github.com/punchcam/backend/internal/session"
	"github.com/punchcam/backend/internal/ws"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	// A .env file is optional; real env vars win either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	br := broker.New(ctx, broker.Config{
		LivenessTimeout: cfg.LivenessTimeout(),
		SweepInterval:   cfg.SweepInterval(),
	}, log.Named("broker"))

	ctrl := session.NewController(ctx, session.Config{
		TickInterval: cfg.TickInterval(),
	}, engine.NewState(cfg.Rules()), br, log.Named("session"))

	classifier := classify.New(cfg.MinVisibility)

	gw := ws.NewGateway(ctrl, br, classifier, ws.Config{
		HistorySize:  cfg.HistorySize,
		OutboxSize:   cfg.OutboxSize,
		ReadTimeout:  cfg.LivenessTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}, log.Named("ws"))

	api := httpapi.NewAPI(ctrl, br, classifier, log.Named("http"))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(api, gw.Handler()),
		// No blanket read/write timeouts: /ws/game connections are
		// long-lived and manage their own deadlines.
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening",
			zap.String("addr", cfg.Addr),
			zap.Int("max_rounds", cfg.MaxRounds),
			zap.Int("round_time_sec", cfg.RoundTimeSec))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sdCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sdCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", zap.Error(err))
		return
	}
	log.Info("server stopped")
}

func buildLogger(level, format string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zcfg.Level = lvl
	return zcfg.Build()
}
