package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/auth"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/mail"
	"fintrack/internal/state"
	"fintrack/internal/syncer"
)

func main() {
	cfg, logger := cli.MustLoad(log.ComponentApp)

	res, err := cli.OpenBackends(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to open backends", log.FieldError, err)
		os.Exit(1)
	}

	storeOpts := state.Options{
		Accounts:  cfg.AccountSet(),
		Persister: res.Blobs,
		Logger:    logger,
	}

	// Record changes feed the ledger mirror worker when a broker is set.
	var notifier *amqp.Client
	if cfg.AMQPURL != "" {
		notifier, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without mirror", log.FieldError, err)
			notifier = nil
		} else {
			storeOpts.Notifier = notifier
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	opts := apphttp.Options{
		Registry:        state.NewRegistry(storeOpts),
		Buckets:         cfg.Buckets(),
		Checks:          map[string]apphttp.Pinger{},
		Logger:          logger,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CacheSize:       cfg.CacheSize,
		CacheTTL:        cfg.CacheTTL,
		TrustedProxies:  cfg.TrustedProxies,
	}
	for name, c := range res.Checks() {
		opts.Checks[name] = c
	}
	if res.Remote != nil {
		opts.Auth = auth.NewService(res.Remote, newMailer(cfg, logger), auth.Config{
			Secret:      []byte(cfg.JWTSecret),
			TokenTTL:    cfg.TokenTTL,
			LinkTTL:     cfg.LinkTTL,
			LinkBaseURL: cfg.LinkBaseURL,
		}, logger)
		opts.Sync = syncer.New(res.Remote, logger)
	}

	srv := apphttp.NewServer(":"+cfg.Port, opts)
	srv.MaxHeaderBytes = 1 << 16

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if notifier != nil {
			if err := notifier.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend close error", log.FieldError, err)
		}
	})

	logger.Info("Starting fintrack server",
		"port", cfg.Port,
		"storage", cfg.StorageBackend,
		"remote", cfg.RemoteBackend,
		"auth_enabled", opts.Auth != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}

func newMailer(cfg *config.Config, logger *log.Logger) mail.Sender {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, sign-in links are logged instead of mailed")
		return mail.LogSender{Logger: logger}
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, logger)
}
