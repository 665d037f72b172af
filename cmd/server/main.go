package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"support-hub/api"
	"support-hub/infrastructure/ws"
	"support-hub/internal"
	"support-hub/moderation"
	"support-hub/notify"
	"support-hub/observability"
	"support-hub/repositories"
	"support-hub/runtime"
	"support-hub/runtime/workers"
	"support-hub/services"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownGrace = 10 * time.Second

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Delivery engine terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the gateway and background workers.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config validation: %w", err)
	}
	censorRune, err := internal.CharacterRune(config.CensorCharacter)
	if err != nil {
		return exitConfig, err
	}

	logger := internal.LoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Core services
	store := repositories.NewDeliveryStore(db, logger, config.RetentionWindow)
	registry := runtime.NewRegistry()
	monitor := observability.NewMonitor(logger)
	router := runtime.NewRouter(logger, registry, store, monitor, config.PushTimeout)

	words, err := moderation.LoadEmbeddedWords()
	if err != nil {
		return exitRuntime, fmt.Errorf("loading censored words: %w", err)
	}
	logger.Info(fmt.Sprintf("%d censored words loaded [%s]",
		len(words.Words), strings.Join(words.Languages, ",")))

	moderator, err := moderation.NewModerator(words.Words, censorRune)
	if err != nil {
		return exitRuntime, fmt.Errorf("building moderator: %w", err)
	}

	chat := services.NewChatService(logger, registry, router, store, moderator, monitor, config.Policy())

	// 4. Workers: one bus consumer per topic plus the retention sweeper.
	supervisor := workers.NewSupervisor(logger)
	renderer := notify.NewRenderer()
	for _, topic := range notify.Topics() {
		reader := workers.NewReader(config.Brokers(), config.KafkaGroupID, topic)
		supervisor.Add(workers.NewTopicConsumer(logger, topic, reader, renderer, router, monitor))
	}
	supervisor.Add(workers.NewRetentionSweeper(logger, store, config.SweepInterval))

	supervisorDone := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(supervisorDone)
	}()

	// 5. HTTP + realtime surface
	gateway := ws.NewGateway(logger, chat, monitor, config.ConnectionBufferSize)
	engine := api.NewServer(logger, chat, monitor).Router(gateway.Handle)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.HTTPPort),
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown", "error", err)
		}
	}()

	logger.Info("Delivery engine listening", "port", config.HTTPPort)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		supervisor.Stop()
		<-supervisorDone
		return exitRuntime, fmt.Errorf("http server: %w", err)
	}

	supervisor.Stop()
	<-supervisorDone
	logger.Info("All workers stopped")
	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	// Badger's own chatter goes through nothing; slog covers the store layer.
	options.Logger = nil
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		logger.Debug("Badger options", "path", config.BadgerFilepath)
	}
	return options
}
