// Package app assembles the ledger services from configuration.
package app

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/roach88/rewardledger/internal/account"
	"github.com/roach88/rewardledger/internal/commission"
	"github.com/roach88/rewardledger/internal/config"
	"github.com/roach88/rewardledger/internal/ledger"
	"github.com/roach88/rewardledger/internal/metrics"
	"github.com/roach88/rewardledger/internal/model"
	"github.com/roach88/rewardledger/internal/reconcile"
	"github.com/roach88/rewardledger/internal/settlement"
	"github.com/roach88/rewardledger/internal/sybil"
)

// Options overrides the sources of time and identity, for tests and
// deterministic scenario runs.
type Options struct {
	Logger *slog.Logger
	Clock  model.Clock
	// NewIDs returns the generator for one kind of record ("user", "log",
	// "alert"). Defaults to UUIDv7 for every kind.
	NewIDs func(kind string) model.IDGenerator
	// Registry receives the collectors. A fresh registry with the Go and
	// process collectors is created when nil.
	Registry *prometheus.Registry
}

// App is a wired ledger.
type App struct {
	Config     *config.Config
	Store      *ledger.Store
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Settler    *settlement.Settler
	Accounts   *account.Service
	Reconciler *reconcile.Reconciler
	Worker     *reconcile.Worker
	Logger     *slog.Logger
}

// Open opens the database named by cfg and wires every service on it.
func Open(cfg *config.Config, opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = model.SystemClock{}
	}
	if opts.NewIDs == nil {
		opts.NewIDs = func(string) model.IDGenerator { return model.UUIDv7Generator{} }
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
		opts.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	st, err := ledger.Open(cfg.Database, ledger.WithRetry(cfg.Retry.MaxAttempts, cfg.Retry.InitialInterval))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	logger := opts.Logger
	m := metrics.New(opts.Registry)
	policy := cfg.VerificationPolicy()

	hook := reconcile.NewHook(policy, opts.Clock)
	rec := reconcile.New(st, policy, cfg.Reconcile.BatchSize, opts.Clock, logger.With("component", "reconcile"), m)
	worker := reconcile.NewWorker(st, rec, cfg.Reconcile.PollInterval, logger.With("component", "worker"))

	guard := sybil.New(cfg.Sybil, opts.NewIDs("alert"), logger.With("component", "sybil"), m)
	router := commission.New(cfg, opts.NewIDs("log"), m)
	settler := settlement.New(st, cfg, guard, router, hook, opts.Clock, logger.With("component", "settlement"),
		settlement.WithNotifier(worker),
		settlement.WithMetrics(m),
	)
	accounts := account.New(st, hook, worker, opts.NewIDs("user"), opts.Clock, logger.With("component", "account"))

	return &App{
		Config:     cfg,
		Store:      st,
		Registry:   opts.Registry,
		Metrics:    m,
		Settler:    settler,
		Accounts:   accounts,
		Reconciler: rec,
		Worker:     worker,
		Logger:     logger,
	}, nil
}

// Close stops the worker and closes the database.
func (a *App) Close() error {
	a.Worker.Stop()
	return a.Store.Close()
}
