package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chatrelay/internal/auth"
	"chatrelay/internal/config"
	"chatrelay/internal/constants"
	"chatrelay/internal/database"
	"chatrelay/internal/models"
	"chatrelay/internal/relay"
	"chatrelay/internal/retry"
	"chatrelay/internal/service"
	"chatrelay/internal/tracing"
	"chatrelay/internal/transport"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes message text and full identities)")
	configPath = flag.String("config", "", "Path to configuration file; defaults and environment only when empty")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("chatrelay %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *verbose); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context, configPath string, verbose bool) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting chatrelay")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	config.ApplyLogLevel(logger, cfg)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - message text and identities will be logged")
	}

	tracingManager := tracing.NewManager(tracing.Config{
		ServiceName:    "chatrelay",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	}()

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLSec)*time.Second)
	userService := service.NewUserService(db, auth.NewHasher(cfg.Auth.BcryptCost), tokens, logger)
	conversationService := service.NewConversationService(db, db, logger)
	messageService := service.NewMessageService(db, db, db, conversationService, logger)

	engine := relay.NewEngine(
		relay.NewRegistry(),
		relay.NewDedupWindow(time.Duration(cfg.Relay.DedupRetentionSec)*time.Second),
		logger,
	)
	engine.SetVerbose(verbose || cfg.Relay.VerboseLogging)

	wsHandler := transport.NewHandler(engine, tokens, transport.Options{
		AllowedOrigins: originPatterns(cfg.Server),
		WriteTimeout:   time.Duration(cfg.Relay.WriteTimeoutSec) * time.Second,
		PingInterval:   time.Duration(cfg.Relay.PingIntervalSec) * time.Second,
		ReadLimit:      cfg.Relay.ReadLimitBytes,
		RequireToken:   cfg.Auth.RequireWSToken,
		Verbose:        verbose || cfg.Relay.VerboseLogging,
	}, logger)

	scheduler := service.NewScheduler(engine, time.Duration(cfg.Relay.MaintenanceIntervalSec)*time.Second, logger)

	server := NewServer(cfg, Dependencies{
		Users:         userService,
		Conversations: conversationService,
		Messages:      messageService,
		Presence:      engine,
		DB:            db,
		WebSocket:     wsHandler,
	}, logger, verbose)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)
	g.Go(func() error {
		scheduler.Start(gctx)
		return nil
	})

	if configPath != "" {
		watcher := config.NewConfigWatcher(configPath, logger)
		watcher.OnConfigChange(func(newCfg *models.Config) {
			if !verbose {
				config.ApplyLogLevel(logger, newCfg)
				engine.SetVerbose(newCfg.Relay.VerboseLogging)
			}
		})
		g.Go(func() error {
			if err := watcher.Start(gctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher stopped")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		return shutdown(server, engine, wsHandler, scheduler, cfg, logger)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// openDatabase opens the store, retrying with exponential backoff while it is
// unavailable.
func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDBConnectRetries,
		Jitter:       true,
	})
	backoff.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.WithFields(logrus.Fields{
			service.LogFieldAttempt: attempt,
			"retry_in":              delay.String(),
		}).WithError(err).Warn("Failed to initialize database")
	}

	var db *database.Database
	err := backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database)
		return initErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

func shutdown(server *Server, engine *relay.Engine, ws *transport.Handler, scheduler *service.Scheduler, cfg *models.Config, logger *logrus.Logger) error {
	timeout := time.Duration(cfg.Server.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = constants.DefaultGracefulShutdownSec * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := server.Shutdown(ctx)

	// Hijacked sockets outlive server shutdown and are closed here.
	engine.Shutdown()
	ws.Shutdown()
	scheduler.Stop()

	if err != nil {
		logger.WithError(err).Error("Failed to shutdown server gracefully")
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}
	return nil
}

// originPatterns turns configured origins into the host patterns the
// WebSocket handshake checks.
func originPatterns(cfg models.ServerConfig) []string {
	origins := append([]string{cfg.ClientURL}, cfg.AllowedOrigins...)
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}
