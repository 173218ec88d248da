// Package main is the entry point for the signoffd daemon.
// signoffd serves the approval workflow API over HTTP and dispatches
// outbound notifications.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbakke/signoff/internal/api"
	"github.com/mbakke/signoff/internal/auth"
	"github.com/mbakke/signoff/internal/config"
	"github.com/mbakke/signoff/internal/db"
	"github.com/mbakke/signoff/internal/events"
	"github.com/mbakke/signoff/internal/logging"
	"github.com/mbakke/signoff/internal/notify"
	"github.com/mbakke/signoff/internal/workflow"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	host := flag.String("host", "", "hostname to listen on")
	port := flag.Int("port", 0, "port to listen on")
	configFile := flag.String("config", "", "config file (default is $HOME/.config/signoff/config.yaml)")
	logLevel := flag.String("log-level", "", "override logging level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "override logging format (json, console)")
	flag.Parse()

	cfg, loader, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	logger := logging.Component("signoffd")

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Warn().Err(err).Msg("failed to create directories")
	}

	if cfgUsed := loader.ConfigFileUsed(); cfgUsed != "" {
		logger.Debug().Str("config_file", cfgUsed).Msg("loaded config file")
	}

	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", date).
		Msg("signoffd starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(cfg.Database.Path, db.Options{
		MaxConnections: cfg.Database.MaxConnections,
		BusyTimeoutMs:  cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var notifier notify.Notifier
	if cfg.SMTP.Host != "" {
		notifier = notify.NewSMTPNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
		logger.Info().Str("smtp_host", cfg.SMTP.Host).Msg("email notifications enabled")
	} else {
		notifier = notify.NewLogNotifier(logging.Component("notify"))
		logger.Info().Msg("smtp not configured, notifications are logged only")
	}
	notifyLog := logging.Component("notify")
	dispatcher := notify.NewDispatcher(notifier, notifyLog,
		notify.WithFailureHook(notify.RecordFailures(db.NewEventRepository(store), notifyLog)))

	publisher := events.NewInMemoryPublisher()
	if err := publisher.Subscribe("audit-log", events.Filter{}, events.LogHandler(logging.Component("audit"))); err != nil {
		logger.Warn().Err(err).Msg("failed to register audit log subscriber")
	}
	engine := workflow.NewEngine(store, dispatcher, publisher, logging.Component("workflow"))

	keyManager := auth.NewAPIKeyManager(db.NewAPIKeyRepository(store), db.NewUserRepository(store))
	server := api.NewServer(engine, keyManager, logging.Component("api"))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	// Let in-flight notifications drain before exit.
	dispatcher.Wait()
	logger.Info().Msg("signoffd stopped")
}

func loadConfig(path string) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader()
	if path != "" {
		loader.SetConfigFile(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}
