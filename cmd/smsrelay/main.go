package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"smsrelay/internal/config"
	"smsrelay/internal/constants"
	"smsrelay/internal/database"
	"smsrelay/internal/dispatch"
	"smsrelay/internal/filter"
	"smsrelay/internal/fingerprint"
	"smsrelay/internal/heartbeat"
	"smsrelay/internal/ingest"
	"smsrelay/internal/models"
	"smsrelay/internal/push"
	"smsrelay/internal/queue"
	"smsrelay/internal/retry"
	"smsrelay/internal/settings"
	"smsrelay/internal/tracing"
	"smsrelay/pkg/gateway"
	"smsrelay/pkg/radio"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version     = "dev"
	VersionCode = 0
	BuildTime   = "unknown"
	GitCommit   = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("smsrelay %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting smsrelay")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyLogLevel(logger, cfg)

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	settingsStore, err := settings.NewFileStore(cfg.SettingsPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open settings store: %w", err)
	}
	seedCredentials(settingsStore, logger)

	messagesPath := cfg.MessagesDBPath
	if messagesPath == "" {
		messagesPath = filepath.Join(filepath.Dir(cfg.Queue.DBPath), "messages.db")
	}
	messageDB, err := database.NewMessageDB(messagesPath)
	if err != nil {
		return fmt.Errorf("failed to open message database: %w", err)
	}
	defer messageDB.Close()

	// The task store is the one component worth waiting for: a locked or
	// briefly unavailable database file should not kill the daemon.
	var taskStore *queue.Store
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  cfg.Retry.MaxAttempts,
		Jitter:       true,
	})
	err = backoff.Retry(ctx, func() error {
		var initErr error
		taskStore, initErr = queue.NewStore(cfg.Queue.DBPath)
		if initErr != nil {
			logger.Warnf("Failed to open task database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to open task database after retries: %w", err)
	}
	defer taskStore.Close()

	httpClient := &http.Client{Timeout: time.Duration(cfg.Gateway.HTTPTimeoutSec) * time.Second}
	backendClient := gateway.NewClient(cfg.Gateway.APIBaseURL, httpClient)
	connectivity := newProbeChecker(cfg.Gateway.APIBaseURL, nil)

	q := queue.New(taskStore, connectivity, logger, queue.Options{
		Workers:        cfg.Queue.Workers,
		PollIntervalMs: cfg.Queue.PollIntervalMs,
	})

	var bridge *radio.Bridge
	var transport radio.Transport
	var resolver radio.SubscriptionResolver
	if cfg.Radio.AgentURL != "" {
		bridge = radio.NewBridge(cfg.Radio.AgentURL, httpClient, cfg.Radio.MultiSim)
		transport = bridge
		resolver = bridge
		logger.WithField("agent", cfg.Radio.AgentURL).Info("Send agent configured")
	} else {
		transport = radio.Unavailable()
		resolver = radio.NoSubscriptions()
		logger.Info("No send agent configured, relay is inbound-only")
	}

	correlator := dispatch.NewCorrelator(q, settingsStore, logger)
	dispatcher := dispatch.NewDispatcher(transport, resolver, correlator, q, settingsStore, logger)

	collector := &hostCollector{
		settings:    settingsStore,
		bridge:      bridge,
		logger:      logger,
		dataDir:     filepath.Dir(cfg.Queue.DBPath),
		versionName: Version,
		versionCode: VersionCode,
		online:      connectivity.IsOnline,
	}

	q.RegisterHandler(models.TaskKindInboundForward, queue.NewForwardHandler(backendClient, logger))
	q.RegisterHandler(models.TaskKindStatusUpdate, queue.NewStatusHandler(backendClient, logger))
	q.RegisterHandler(models.TaskKindHeartbeat, heartbeat.NewWorker(backendClient, collector, settingsStore, logger))

	if err := q.Start(ctx); err != nil {
		return fmt.Errorf("failed to start delivery queue: %w", err)
	}
	defer q.Stop()

	cache := fingerprint.NewCache()
	engine := filter.NewEngine(settingsStore, logger)
	pipeline := ingest.NewPipeline(cache, engine, q, settingsStore, logger)
	broadcast := ingest.NewBroadcastSource(pipeline, messageDB, logger)
	observer := ingest.NewStoreObserver(pipeline, messageDB, logger)
	notification := ingest.NewNotificationSource(pipeline, messageDB, logger)

	if cfg.Gateway.PushURL != "" {
		listener := push.NewListener(cfg.Gateway.PushURL, dispatcher, settingsStore, logger)
		if err := listener.Start(ctx); err != nil {
			return fmt.Errorf("failed to start push listener: %w", err)
		}
		defer listener.Stop()
	} else {
		logger.Info("No push URL configured, outbound sends arrive via the local API only")
	}

	// The worker no-ops while the device is unregistered or the gateway is
	// off, so the schedule can run unconditionally and picks up eligibility
	// changes on its own.
	scheduler := heartbeat.NewScheduler(q, settingsStore, logger)
	scheduler.Schedule(ctx, heartbeat.EffectiveIntervalMinutes(settingsStore))
	defer scheduler.Cancel()

	go pruneLoop(ctx, messageDB, logger)
	go watchConfig(ctx, logger)

	server := NewServer(cfg.Server.Port, settingsStore, engine, taskStore, broadcast, observer, notification, messageDB, correlator, dispatcher, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func applyLogLevel(logger *logrus.Logger, cfg *models.Config) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
		return
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	if level > logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// seedCredentials lets an operator bootstrap device identity through the
// environment instead of editing the settings file by hand.
func seedCredentials(store settings.Store, logger *logrus.Logger) {
	if id := os.Getenv("SMSRELAY_DEVICE_ID"); id != "" {
		if err := store.SetString(settings.KeyDeviceID, id); err != nil {
			logger.WithError(err).Warn("Failed to store device id from environment")
		}
	}
	if key := os.Getenv("SMSRELAY_API_KEY"); key != "" {
		if err := store.SetString(settings.KeyAPIKey, key); err != nil {
			logger.WithError(err).Warn("Failed to store api key from environment")
		}
	}
}

// pruneLoop keeps the local message store bounded. The store only exists to
// serve the observer and sender resolution, both of which look seconds into
// the past, so a day of retention is generous.
func pruneLoop(ctx context.Context, db *database.MessageDB, logger *logrus.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := db.Prune(ctx, time.Now().Add(-24*time.Hour))
			if err != nil {
				if ctx.Err() == nil {
					logger.WithError(err).Warn("Failed to prune message store")
				}
				continue
			}
			if pruned > 0 {
				logger.WithField("pruned", pruned).Debug("Message store pruned")
			}
		}
	}
}

// watchConfig reloads the configuration file on change. Only the log level
// is honored at runtime; everything else needs a restart.
func watchConfig(ctx context.Context, logger *logrus.Logger) {
	watcher := config.NewWatcher(*configPath, logger)
	watcher.OnChange(func(cfg *models.Config) {
		applyLogLevel(logger, cfg)
	})
	if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Warn("Configuration watcher stopped")
	}
}
