package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"mailbox-poller/internal/config"
	"mailbox-poller/internal/crypto"
	"mailbox-poller/internal/db"
	"mailbox-poller/internal/dispatcher"
	"mailbox-poller/internal/enrichment"
	"mailbox-poller/internal/handlers"
	"mailbox-poller/internal/mailbox"
	"mailbox-poller/internal/metrics"
	"mailbox-poller/internal/notifier"
	"mailbox-poller/internal/processor"
	"mailbox-poller/internal/repository"
	"mailbox-poller/internal/scheduler"
	"mailbox-poller/internal/server"
)

const shutdownTimeout = 30 * time.Second

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Mailbox Poller Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := configureLogging(cfg.Log); err != nil {
		return err
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	cipher, err := crypto.NewCipherFromBase64(cfg.Crypto.Key)
	if err != nil {
		return fmt.Errorf("failed to load credential key: %w", err)
	}

	ctx := context.Background()
	sender, err := newSender(ctx, cfg.Notifier)
	if err != nil {
		return err
	}

	enqueuer, closeQueue, err := newEnqueuer(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeQueue.Close()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	accounts := repository.NewAccountRepository(dbConn)

	proc := processor.New(processor.Dependencies{
		Accounts: accounts,
		Ledger:   repository.NewProcessedMessageRepository(dbConn),
		Mailbox: mailbox.NewClient(mailbox.Config{
			Host:              cfg.POP3.Host,
			Port:              cfg.POP3.Port,
			TLS:               cfg.POP3.TLS,
			MaxFetch:          cfg.POP3.MaxFetch,
			ConnectionTimeout: cfg.POP3.ConnectionTimeout(),
			ReadTimeout:       cfg.POP3.ReadTimeout(),
		}),
		Cipher:   cipher,
		Sender:   sender,
		Enqueuer: enqueuer,
		Metrics:  m,
	})

	pool := dispatcher.New(dispatcher.Config{
		CoreWorkers:   cfg.Worker.CoreSize,
		MaxWorkers:    cfg.Worker.MaxSize,
		QueueCapacity: cfg.Worker.QueueCapacity,
		NamePrefix:    cfg.Worker.NamePrefix,
		KeepAlive:     cfg.Worker.KeepAlive,
		DrainTimeout:  cfg.Worker.DrainTimeout,
	}, proc.Run, dispatcher.NewInFlight(), m)

	sched := scheduler.NewScheduler(cfg.Scheduler.PollInterval(), accounts, pool, m)

	h := handlers.NewHandlers(dbConn, sched, pool)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// no new ticks, then let accepted users finish
	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Worker.DrainTimeout+time.Second)
	defer cancelDrain()
	if err := pool.Shutdown(drainCtx); err != nil {
		logrus.Errorf("Worker pool shutdown: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

func configureLogging(cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logrus.SetLevel(level)

	switch cfg.Format {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

func newSender(ctx context.Context, cfg config.NotifierConfig) (notifier.Sender, error) {
	switch cfg.Type {
	case config.NotifierSlack:
		logrus.Info("Using Slack for notifications")
		return notifier.NewSlackSender(cfg.SlackToken, cfg.SlackAPIURL, nil), nil
	case config.NotifierGmail:
		sender, err := notifier.NewGmailSender(ctx, notifier.GmailConfig{
			ClientID:     cfg.GmailClientID,
			ClientSecret: cfg.GmailClientSecret,
			RefreshToken: cfg.GmailRefreshToken,
			Sender:       cfg.GmailSender,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gmail sender: %w", err)
		}
		logrus.Info("Using Gmail API for notifications")
		return sender, nil
	default:
		logrus.Warn("Notifications disabled")
		return notifier.NopSender{}, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newEnqueuer connects to Redis when a URL is configured. The returned
// closer releases the connection.
func newEnqueuer(ctx context.Context, cfg config.RedisConfig) (enrichment.Enqueuer, io.Closer, error) {
	if cfg.URL == "" {
		logrus.Info("Enrichment queue not configured, tasks are only logged")
		return enrichment.LogEnqueuer{}, nopCloser{}, nil
	}

	rdb, err := enrichment.NewRedisClient(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logrus.Infof("Publishing enrichment tasks to redis list %s", cfg.EnrichmentQueue)
	return enrichment.NewRedisEnqueuer(rdb, cfg.EnrichmentQueue), rdb, nil
}
