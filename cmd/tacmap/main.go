package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"tacmap/internal/config"
	"tacmap/internal/database"
	"tacmap/internal/influx"
	"tacmap/internal/logging"
	intOtel "tacmap/internal/otel"
	"tacmap/internal/server"
	"tacmap/internal/session"
)

// Version can be set at build time via ldflags.
var Version = "0.0.1"

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime = time.Now()
)

func main() {
	configDir := flag.String("config", ".", "directory containing tacmap.cfg.json")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logFile := setupLogging(cfg)
	if logFile != nil {
		defer logFile.Close()
	}
	defer SlogManager.Close()
	Logger.Info("Starting up...", "version", Version)

	args := flag.Args()
	if len(args) > 0 && strings.ToLower(args[0]) != "serve" {
		if err := runCommand(cfg, logFile, args); err != nil {
			Logger.Error("Command failed", "command", args[0], "error", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(cfg, logFile); err != nil {
		Logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

// setupLogging creates the session log file and wires the slog manager,
// optional GELF shipping, and the optional OTel log provider. Falls back
// to stderr when the logs directory cannot be used.
func setupLogging(cfg config.Config) *os.File {
	SlogManager = logging.NewSlogManager()

	if _, err := os.Stat(cfg.LogsDir); os.IsNotExist(err) {
		os.Mkdir(cfg.LogsDir, 0755)
	}

	logFilePath := logging.LogFilePath(cfg.LogsDir, SessionStartTime)
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file, logging to stderr: %v\n", err)
		SlogManager.Setup(os.Stderr, cfg.LogLevel, nil, nil)
		Logger = SlogManager.Logger()
		return nil
	}

	var gelfHandler *logging.GelfHandler
	if cfg.Graylog.Enabled {
		gelfHandler, err = logging.NewGelfHandler(cfg.Graylog.Address, logging.ParseLevel(cfg.LogLevel))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect GELF handler: %v\n", err)
			gelfHandler = nil
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if cfg.OTel.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      cfg.OTel.Enabled,
			ServiceName:  cfg.OTel.ServiceName,
			BatchTimeout: cfg.OTel.BatchTimeout,
			LogWriter:    logFile,
			Endpoint:     cfg.OTel.Endpoint,
			Insecure:     cfg.OTel.Insecure,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize OTel provider: %v\n", err)
		} else {
			otelLogProvider = OTelProvider.LoggerProvider()
		}
	}

	SlogManager.Setup(logFile, cfg.LogLevel, gelfHandler, otelLogProvider)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", logFilePath)
	return logFile
}

// zerologTo adapts the session log file for the subsystems that log
// through zerolog.
func zerologTo(w *os.File) zerolog.Logger {
	out := os.Stderr
	if w != nil {
		out = w
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// connectStore connects the session database and returns a store and
// recorder. Both are nil when no database is reachable; the dashboard
// still runs live without recording.
func connectStore(cfg config.Config, zlog zerolog.Logger) (*session.Store, *session.Recorder, func()) {
	dbManager := database.NewManager(cfg.DB, zlog)
	if err := dbManager.Connect(); err != nil {
		Logger.Warn("No database available, session recording disabled", "error", err)
		return nil, nil, func() {}
	}
	if err := dbManager.Setup(session.DatabaseModels...); err != nil {
		Logger.Error("Database migration failed, session recording disabled", "error", err)
		return nil, nil, func() { dbManager.Close() }
	}

	store := session.NewStore(dbManager.DB, zlog)
	recorder := session.NewRecorder(store, Logger)
	if err := recorder.Start(fmt.Sprintf("session %s", SessionStartTime.Format("2006-01-02 15:04")), SessionStartTime); err != nil {
		Logger.Error("Failed to begin session, recording disabled", "error", err)
		return store, nil, func() { dbManager.Close() }
	}
	Logger.Info("Session recording started", "sessionId", recorder.SessionID())
	return store, recorder, func() { dbManager.Close() }
}

func serve(cfg config.Config, logFile *os.File) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zlog := zerologTo(logFile)

	store, recorder, closeDB := connectStore(cfg, zlog)
	defer closeDB()

	var metrics *influx.Manager
	if cfg.Influx.Enabled {
		metrics = influx.NewManager(cfg.Influx, zlog)
		if err := metrics.Connect(); err != nil {
			Logger.Warn("Metrics exporter unavailable", "error", err)
			metrics = nil
		} else {
			metrics.CreateWriters()
			defer metrics.Close()
		}
	}

	srv, err := server.New(cfg, Logger, server.Options{
		Store:    store,
		Recorder: recorder,
		Metrics:  metrics,
	})
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	if cfg.Archive.Path != "" {
		if err := srv.LoadArchiveFile(cfg.Archive.Path); err != nil {
			Logger.Error("Failed to load tile archive", "path", cfg.Archive.Path, "error", err)
		}
	}

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			Logger.Error("HTTP shutdown error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	Logger.Info("Listening", "addr", cfg.Listen)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		<-done
		return err
	}
	<-done

	if OTelProvider != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := OTelProvider.Flush(flushCtx); err != nil {
			Logger.Warn("Failed to flush OTel data", "error", err)
		}
	}
	Logger.Info("Shutdown complete")
	return nil
}
