package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/gherkit/pkg/browser"
	"github.com/pario-ai/gherkit/pkg/budget"
	"github.com/pario-ai/gherkit/pkg/cache"
	"github.com/pario-ai/gherkit/pkg/cache/redis"
	"github.com/pario-ai/gherkit/pkg/cache/sqlite"
	"github.com/pario-ai/gherkit/pkg/config"
	"github.com/pario-ai/gherkit/pkg/llm"
	"github.com/pario-ai/gherkit/pkg/logging"
	"github.com/pario-ai/gherkit/pkg/metrics"
	"github.com/pario-ai/gherkit/pkg/pipeline"
	"github.com/pario-ai/gherkit/pkg/scenario"
	"github.com/pario-ai/gherkit/pkg/tracker"
)

// addConfigFlag registers -c/--config on cmd.
func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.PersistentFlags().StringVarP(path, "config", "c", config.DefaultPath, "path to config file")
}

// loadConfig reads the config file. The default file may be absent; a file
// named on the command line must exist.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	cfg, err := config.Load(path, !cmd.Flags().Changed("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// app holds the long-lived services a command needs. Fields a command did
// not ask for stay nil.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	cache   *cache.Cache
	tracker *tracker.SQLiteTracker
	budget  *budget.Enforcer
	writer  *scenario.Writer
	orch    *pipeline.Orchestrator
}

// newApp builds the logger, cache and usage tracker. Call withPipeline to
// add the generation services.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		writer:  scenario.NewWriter(cfg.OutputDir, logger),
	}

	a.cache, err = openCache(ctx, cfg, logger, a.metrics)
	if err != nil {
		a.close()
		return nil, err
	}

	a.tracker, err = tracker.New(cfg.DBPath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open usage tracker: %w", err)
	}
	if cfg.Budget.Enabled {
		a.budget = budget.New(cfg.Budget.Policies, a.tracker)
	}
	return a, nil
}

// openCache returns nil when caching is disabled.
func openCache(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*cache.Cache, error) {
	if !cfg.Cache.Enabled {
		logger.Info("response cache disabled")
		return nil, nil
	}
	var (
		backend cache.Backend
		err     error
	)
	switch cfg.Cache.Backend {
	case "redis":
		r := cfg.Cache.Redis
		backend, err = redis.Dial(ctx, r.Addr, r.Password, r.DB, r.Prefix)
	default:
		backend, err = sqlite.New(cfg.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Cache.Backend, err)
	}
	return cache.New(backend, cfg.Cache.TTL, cache.WithLogger(logger), cache.WithMetrics(m)), nil
}

// withPipeline wires the inference client, browser driver and orchestrator.
func (a *app) withPipeline() error {
	cfg := a.cfg
	completer, err := llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Timeout)
	if err != nil {
		return fmt.Errorf("inference client: %w (set OPENAI_API_KEY)", err)
	}
	var b llm.Budget
	if a.budget != nil {
		b = a.budget
	}
	client := llm.NewClient(completer, llm.Options{
		Model:             cfg.LLM.Model,
		Cache:             a.cache,
		Budget:            b,
		Usage:             a.tracker,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		MaxPlanChars:      cfg.LLM.MaxPlanChars,
		MaxContextChars:   cfg.LLM.MaxContextChars,
		Logger:            a.logger,
		Metrics:           a.metrics,
	})

	driver, err := browser.New(cfg.Browser.Driver)
	if err != nil {
		return err
	}
	if pw, ok := driver.(*browser.Playwright); ok {
		pw.Install = cfg.Browser.Install
	}

	a.orch = pipeline.New(pipeline.Config{
		Cache:     a.cache,
		LLM:       client,
		Driver:    driver,
		Browser:   browser.Options{Headless: cfg.Browser.Headless, Timeout: cfg.Browser.Timeout},
		Extractor: browser.NewExtractor(cfg.Browser.Settle, a.logger),
		Executor:  browser.NewExecutor(cfg.Browser.Settle, a.logger, a.metrics),
		Writer:    a.writer,
		Logger:    a.logger,
		Metrics:   a.metrics,
	})
	return nil
}

func (a *app) close() {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.tracker != nil {
		errs = append(errs, a.tracker.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("close", zap.Error(err))
	}
	_ = a.logger.Sync()
}
