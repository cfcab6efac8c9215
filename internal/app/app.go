// Package app wires configuration into the invoice pipeline and its outer surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"invoice-relay-go/config"
	"invoice-relay-go/internal/database"
	"invoice-relay-go/internal/extractor"
	"invoice-relay-go/internal/handler"
	"invoice-relay-go/internal/mailbox"
	"invoice-relay-go/internal/metrics"
	"invoice-relay-go/internal/notifier"
	"invoice-relay-go/internal/pipeline"
	"invoice-relay-go/internal/repository"
	"invoice-relay-go/internal/retry"
	"invoice-relay-go/internal/router"
	"invoice-relay-go/internal/scheduler"
	"invoice-relay-go/internal/validator"
)

// Components are the collaborators shared by every pipeline run
type Components struct {
	Config    *config.Config
	Extractor *extractor.Extractor
	Validator *validator.Validator
	Notifier  notifier.Multi
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
}

// Build loads reference data and creates the extractor, validator, notifiers and metrics
func Build(cfg *config.Config) (*Components, error) {
	ref, err := validator.LoadReferenceData(cfg.Validation.PONumbersFile, cfg.Validation.ApprovedVendorsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}

	rules := validator.Rules{
		MinAmount:         decimal.NewFromFloat(cfg.Validation.MinInvoiceAmount),
		MaxAmount:         decimal.NewFromFloat(cfg.Validation.MaxInvoiceAmount),
		MaxInvoiceAgeDays: cfg.Validation.MaxInvoiceAgeDays,
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Components{
		Config:    cfg,
		Extractor: extractor.New(extractor.FitzSource{}),
		Validator: validator.New(rules, ref),
		Notifier:  notifier.FromConfig(cfg.Notifier),
		Metrics:   metrics.NewMetrics(reg),
		Registry:  reg,
	}, nil
}

// Pipeline creates a pipeline that persists through openStore
func (c *Components) Pipeline(openStore pipeline.StoreOpener) *pipeline.Pipeline {
	return pipeline.New(pipeline.Deps{
		OpenMailbox: c.openMailbox,
		OpenStore:   openStore,
		Extractor:   c.Extractor,
		Validator:   c.Validator,
		Notifier:    c.Notifier,
		Metrics:     c.Metrics,
	}, pipeline.Options{
		DryRun: c.Config.DryRun,
		Retry:  RetryPolicy(c.Config.Retry),
	})
}

func (c *Components) openMailbox(ctx context.Context) (pipeline.Mailbox, error) {
	s, err := mailbox.Dial(ctx, c.Config.Mailbox)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases notifier resources
func (c *Components) Close() {
	if err := c.Notifier.Close(); err != nil {
		logrus.Errorf("Failed to close notifiers: %v", err)
	}
}

// RetryPolicy builds the retry policy for mailbox and store calls
func RetryPolicy(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts:     cfg.MaxAttempts,
		BaseDelay:       cfg.BaseDelay,
		MaxDelay:        cfg.MaxDelay,
		ExponentialBase: cfg.ExponentialBase,
		Retryable:       isRetryable,
	}
}

// isRetryable matches mailbox connection failures and transient store failures
func isRetryable(err error) bool {
	var connErr *mailbox.ConnectionError
	return errors.As(err, &connErr) || errors.Is(err, repository.ErrTransient)
}

// openRepository connects to the database. Connection failures are transient.
func openRepository(ctx context.Context, cfg config.DatabaseConfig) (*repository.Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, &repository.StoreError{Op: "connect", Err: err, Transient: true}
	}
	return repository.New(db), nil
}

// sharedStore lends a long-lived repository to a run without closing it afterwards
type sharedStore struct {
	*repository.Repository
}

func (sharedStore) Close() error { return nil }

// RunOnce processes a single batch and returns its report. The database is
// opened for the run and closed when it ends.
func RunOnce(ctx context.Context, cfg *config.Config) (*pipeline.Report, error) {
	c, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.Metrics.Port),
			Handler:           metrics.Handler(c.Registry),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logrus.Infof("Serving metrics on port %d", cfg.Metrics.Port)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logrus.Errorf("Metrics server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	p := c.Pipeline(func(ctx context.Context) (pipeline.Store, error) {
		repo, err := openRepository(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return repo, nil
	})
	return p.Execute(ctx)
}

// Run starts the scheduler and HTTP API and blocks until SIGINT or SIGTERM
func Run(cfg *config.Config) error {
	logrus.Info("Starting Invoice Relay Service")

	c, err := Build(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	repo, err := openRepository(context.Background(), cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logrus.Errorf("Failed to close database: %v", err)
		}
	}()

	p := c.Pipeline(func(context.Context) (pipeline.Store, error) {
		return sharedStore{repo}, nil
	})
	sched := scheduler.NewScheduler(&cfg.Scheduler, p)

	h := handler.NewHandlers(repo, sched, metrics.Handler(c.Registry))
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.SetupRouter(h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Scheduler.Enabled {
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
		logrus.Info("Shutting down server...")
	case runErr = <-serverErr:
		logrus.Errorf("HTTP server error: %v", runErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return runErr
}
