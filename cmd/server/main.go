package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/stashbase/stashbase"
	"github.com/stashbase/stashbase/factory"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	sugar.Infow("starting stashbase server",
		"http_port", cfg.HTTP.Port,
		"db_host", cfg.Database.Host,
		"db_name", cfg.Database.Database,
		"meta_table", cfg.Database.MetaTable,
	)

	ctx := context.Background()
	handlers, conns, err := factory.NewHandlers(ctx, cfg)
	if err != nil {
		sugar.Fatalw("failed to initialize handlers", "error", err)
	}
	defer conns.Close()

	server := NewServer(handlers, conns, cfg)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		sugar.Infow("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("http server error", "error", err)
		}
	}()

	<-quit
	sugar.Infow("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("error during shutdown", "error", err)
	}
	sugar.Infow("server stopped")
}

// loadConfig reads the config file when given one, otherwise falls back to
// CONFIG_PATH, otherwise defaults.
func loadConfig(path string) (*stashbase.Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		return stashbase.DefaultConfig(), nil
	}
	return stashbase.LoadConfig(path)
}

func newLogger(cfg stashbase.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zapCfg.Level = level
	}
	return zapCfg.Build()
}
