package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"netwatch/internal/config"
	"netwatch/internal/netstate"
	"netwatch/internal/server"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file (YAML)")
		addr       = flag.String("addr", "", "address for the web server (overrides listen_addr)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.DebugLogging {
		level.SetLevel(zapcore.DebugLevel)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	logger, err := zcfg.Build()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	settings := config.NewSettings()
	if err := cfg.Apply(settings); err != nil {
		logger.Fatal("apply config", zap.Error(err))
	}

	engine := netstate.New(settings, logger, netstate.WithLevel(&level))

	// Keep one polling observer alive for the process so flips get
	// logged even with no websocket clients connected.
	sub := engine.Subscribe(true, func(ev netstate.Event, online bool) {
		logger.Info("connectivity changed",
			zap.String("event", string(ev)),
			zap.Bool("online", online))
	})
	defer sub.Close()

	listenAddr := cfg.ListenAddr
	if *addr != "" {
		listenAddr = *addr
	}
	srv := server.New(listenAddr, engine, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("netwatch listening",
		zap.String("addr", listenAddr),
		zap.Duration("interval", settings.Interval()),
		zap.String("endpoint", settings.Endpoint()))
	if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
