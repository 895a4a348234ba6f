// Package app wires configuration into a ready-to-run orchestrator.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pithecene-io/mlbstats/internal/assets"
	"github.com/pithecene-io/mlbstats/internal/config"
	"github.com/pithecene-io/mlbstats/internal/dbt"
	"github.com/pithecene-io/mlbstats/internal/duckpond"
	"github.com/pithecene-io/mlbstats/internal/pipeline"
	"github.com/pithecene-io/mlbstats/internal/source"
	"github.com/pithecene-io/mlbstats/lake"
	"github.com/pithecene-io/mlbstats/lake/s3"
)

// App holds the wired components.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        lake.Store
	IO           *lake.IOManager
	Registry     *pipeline.Registry
	Orchestrator *pipeline.Orchestrator
}

// Option customizes New.
type Option func(*options)

type options struct {
	store lake.Store
	now   func() time.Time
}

// WithStore replaces the configured lake store.
func WithStore(s lake.Store) Option {
	return func(o *options) { o.store = s }
}

// WithClock replaces time.Now for partition resolution and load stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewLogger builds the process logger from the configured format and level.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return slog.New(h).With("env", cfg.Env)
}

// OpenStore connects to the configured lake: the local directory when set,
// otherwise the S3-compatible bucket.
func OpenStore(ctx context.Context, cfg *config.Config) (lake.Store, error) {
	if cfg.UsesLocalLake() {
		return lake.NewFS(cfg.LocalLakeDir)
	}
	store, err := s3.Connect(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Layout returns the lake layout for cfg.
func Layout(cfg *config.Config) lake.Layout {
	bucket := cfg.Storage.Bucket
	if cfg.UsesLocalLake() {
		bucket = ""
	}
	return lake.NewLayout(bucket, cfg.Storage.Prefix)
}

// New wires every component described by cfg. logger may be nil.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = NewLogger(cfg, os.Stderr)
	}
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	store := o.store
	if store == nil {
		var err error
		if store, err = OpenStore(ctx, cfg); err != nil {
			return nil, fmt.Errorf("open lake: %w", err)
		}
	}

	iom, err := lake.NewIOManager(store,
		lake.WithLayout(Layout(cfg)),
		lake.WithBatchSize(cfg.BatchSize),
		lake.WithMaxWorkers(cfg.MaxWorkers),
		lake.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	client := source.NewClient(
		source.WithRateLimit(cfg.SourceRPS, cfg.SourceBurst),
		source.WithLogger(logger),
	)
	var tokens source.TokenSource
	if cfg.FantasyLoaderToken != "" {
		tokens = source.StaticToken(cfg.FantasyLoaderToken)
	}

	reg := pipeline.NewRegistry()
	err = assets.Register(reg, assets.Deps{
		MLB:     source.NewMLB(client, cfg.MLBBaseURL),
		Fantasy: source.NewFantasyLoader(client, cfg.FantasyLoaderURL, tokens),
		DBT: &dbt.Runner{
			Executable: cfg.DBTExecutable,
			ProjectDir: cfg.DBTProjectDir,
			Logger:     logger.With("component", "dbt"),
		},
		Now: o.now,
	})
	if err != nil {
		return nil, fmt.Errorf("register steps: %w", err)
	}

	orch, err := pipeline.NewOrchestrator(reg, iom,
		pipeline.WithLogger(logger),
		pipeline.WithClock(o.now),
		pipeline.WithSensors(cfg.Pipeline.Sensors...),
	)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		Store:        store,
		IO:           iom,
		Registry:     reg,
		Orchestrator: orch,
	}, nil
}

// Scheduler returns a scheduler loaded with the configured schedules.
func (a *App) Scheduler() (*pipeline.Scheduler, error) {
	s := pipeline.NewScheduler(a.Orchestrator, a.Logger)
	for _, sched := range a.Config.Pipeline.Schedules {
		if err := s.Add(sched); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// OpenPond starts DuckDB over the lake and registers a view for every step
// that has output. Steps without files yet are skipped.
func (a *App) OpenPond(ctx context.Context) (*duckpond.Pond, []string, error) {
	pond, err := duckpond.Open(ctx, duckpond.Options{
		Storage:  a.Config.Storage,
		LocalDir: a.Config.LocalLakeDir,
		Logger:   a.Logger,
	})
	if err != nil {
		return nil, nil, err
	}

	var views []string
	for _, s := range a.Registry.Steps() {
		if err := pond.RegisterView(ctx, s.Namespace, s.Partitions != nil); err != nil {
			a.Logger.Debug("no view for step", "step", s.Name(), "error", err)
			continue
		}
		views = append(views, duckpond.ViewName(s.Namespace))
	}
	return pond, views, nil
}
