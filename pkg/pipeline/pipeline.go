// Package pipeline drives a generation run from page markup to a written
// feature file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pario-ai/gherkit/pkg/browser"
	"github.com/pario-ai/gherkit/pkg/cache"
	"github.com/pario-ai/gherkit/pkg/llm"
	"github.com/pario-ai/gherkit/pkg/metrics"
	"github.com/pario-ai/gherkit/pkg/models"
	"github.com/pario-ai/gherkit/pkg/scenario"
)

// ErrInvalidRequest is returned before any work starts when a request cannot be run.
var ErrInvalidRequest = errors.New("invalid request")

const tracerName = "github.com/pario-ai/gherkit/pkg/pipeline"

// Config holds the collaborators of an Orchestrator. Cache may be nil.
type Config struct {
	Cache     *cache.Cache
	LLM       *llm.Client
	Driver    browser.Driver
	Browser   browser.Options
	Extractor *browser.Extractor
	Executor  *browser.Executor
	Writer    *scenario.Writer

	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	TracerProvider trace.TracerProvider
}

// Orchestrator runs generation requests. It holds no per-run state and is
// safe for concurrent use.
type Orchestrator struct {
	cache     *cache.Cache
	llm       *llm.Client
	driver    browser.Driver
	browser   browser.Options
	extractor *browser.Extractor
	executor  *browser.Executor
	writer    *scenario.Writer
	logger    *zap.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// New returns an Orchestrator over cfg.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	o := &Orchestrator{
		cache:     cfg.Cache,
		llm:       cfg.LLM,
		driver:    cfg.Driver,
		browser:   cfg.Browser,
		extractor: cfg.Extractor,
		executor:  cfg.Executor,
		writer:    cfg.Writer,
		logger:    logger.With(zap.String("component", "pipeline")),
		metrics:   cfg.Metrics,
		tracer:    tp.Tracer(tracerName),
	}
	if o.extractor == nil {
		o.extractor = browser.NewExtractor(0, logger)
	}
	if o.executor == nil {
		o.executor = browser.NewExecutor(0, logger, cfg.Metrics)
	}
	return o
}

// Validate normalises req in place and rejects requests that cannot run.
func Validate(req *models.GenerationRequest) error {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidRequest)
	}
	if req.Mode == "" {
		req.Mode = models.ModeAuto
		if strings.TrimSpace(req.Instructions) != "" {
			req.Mode = models.ModeCustom
		}
	}
	if _, ok := models.ParseMode(string(req.Mode)); !ok {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}
	if req.Mode == models.ModeCustom && strings.TrimSpace(req.Instructions) == "" {
		return fmt.Errorf("%w: custom mode needs test steps", ErrInvalidRequest)
	}
	return nil
}

// run is the mutable state of one generation.
type run struct {
	id    string
	req   models.GenerationRequest
	// target is the canonical form of req.URL used in prompts, so requests
	// that share a markup fingerprint also share completion fingerprints.
	target string
	model string
	state State
	path  []State
	lease *browser.Lease
	log   *zap.Logger

	page        *models.Page
	navigated   bool
	plan        models.ActionPlan
	results     []models.ActionResult
	interp      models.Interpretation
	gherkin     string
	llmCacheHit map[string]bool
}

// Run executes req and writes the resulting feature file. On failure the
// error is a *StageError wrapping the taxonomy error and nothing is written.
func (o *Orchestrator) Run(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}

	r := &run{
		id:          uuid.NewString(),
		req:         req,
		target:      cache.NormalizeURL(req.URL),
		model:       o.llm.Model(req.Model),
		state:       StateStart,
		path:        []State{StateStart},
		llmCacheHit: map[string]bool{},
	}
	opts := o.browser
	opts.Headless = req.Headless
	r.lease = browser.NewLease(o.driver, opts)
	r.log = o.logger.With(zap.String("run_id", r.id), zap.String("mode", string(req.Mode)))

	ctx = models.WithRunID(ctx, r.id)
	ctx, span := o.tracer.Start(ctx, "gherkit.generate", trace.WithAttributes(
		attribute.String("gherkit.run_id", r.id),
		attribute.String("gherkit.mode", string(req.Mode)),
		attribute.String("gherkit.url", req.URL),
		attribute.String("gherkit.model", r.model),
	))
	defer span.End()
	defer func() {
		if err := r.lease.Close(); err != nil {
			r.log.Warn("close browser session", zap.Error(err))
		}
	}()

	r.log.Info("generation started", zap.String("url", req.URL), zap.String("model", r.model))
	start := time.Now()

	err := o.steps(ctx, r)
	if err != nil {
		r.path = append(r.path, StateFailed)
		r.state = StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.PipelineRun(string(req.Mode), string(StateFailed))
		r.log.Error("generation failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, err
	}

	art, err := o.writer.Write(req.Mode, r.gherkin, req.OutputPath)
	if err != nil {
		err = &StageError{State: StateDone, Err: err}
		r.path = append(r.path, StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.PipelineRun(string(req.Mode), string(StateFailed))
		r.log.Error("generation failed", zap.Error(err))
		return nil, err
	}
	r.advance(StateDone)
	o.metrics.PipelineRun(string(req.Mode), string(StateDone))
	span.SetAttributes(attribute.String("gherkit.output", art.Filename))
	r.log.Info("generation finished",
		zap.String("output", art.Path),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &models.GenerationResult{
		RunID:       r.id,
		GherkinText: r.gherkin,
		OutputPath:  art.Path,
		Filename:    art.Filename,
		Timestamp:   art.Timestamp,
		Metadata:    r.metadata(),
	}, nil
}

func (o *Orchestrator) steps(ctx context.Context, r *run) error {
	if err := o.stage(ctx, r, StateMarkupFetched, o.fetchMarkup); err != nil {
		return err
	}
	if r.req.Mode == models.ModeCustom {
		if err := o.stage(ctx, r, StateInterpreted, o.narrate); err != nil {
			return err
		}
		return o.stage(ctx, r, StateScenariosBuilt, o.convert)
	}
	for _, s := range []struct {
		state State
		fn    func(context.Context, *run) error
	}{
		{StateActionsPlanned, o.planActions},
		{StateActionsExecuted, o.executeActions},
		{StateInterpreted, o.interpret},
		{StateScenariosBuilt, o.buildScenarios},
	} {
		if err := o.stage(ctx, r, s.state, s.fn); err != nil {
			return err
		}
	}
	return nil
}

// stage runs fn inside a span and moves r to next on success.
func (o *Orchestrator) stage(ctx context.Context, r *run, next State, fn func(context.Context, *run) error) error {
	ctx, span := o.tracer.Start(ctx, "gherkit.stage."+strings.ToLower(string(next)),
		trace.WithAttributes(attribute.String("gherkit.from", string(r.state))))
	defer span.End()

	start := time.Now()
	err := fn(ctx, r)
	o.metrics.Stage(string(next), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{State: next, Err: err}
	}
	r.advance(next)
	r.log.Info("stage complete", zap.String("state", string(next)), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (r *run) advance(s State) {
	r.state = s
	r.path = append(r.path, s)
}

// fetchMarkup serves the page from the html_fetch cache or extracts it
// with a browser session opened on demand.
func (o *Orchestrator) fetchMarkup(ctx context.Context, r *run) error {
	var extracted *models.Page
	compute := func(ctx context.Context) (string, error) {
		sess, err := r.lease.Session(ctx)
		if err != nil {
			return "", &models.ExtractionError{URL: r.req.URL, Err: err}
		}
		page, err := o.extractor.Extract(ctx, sess, r.req.URL)
		if err != nil {
			return "", err
		}
		extracted = page
		return page.HTML, nil
	}

	var ran atomic.Bool
	raw, hit, err := o.cache.Fetch(ctx, models.KindHTMLFetch, cache.HTMLInputs(r.req.URL), func(ctx context.Context) (string, error) {
		ran.Store(true)
		return compute(ctx)
	})
	// A failed fetch shared with another run used that run's browser; try
	// once more with our own.
	if err != nil && ctx.Err() == nil && !ran.Load() {
		r.log.Debug("shared markup fetch failed, retrying", zap.Error(err))
		raw, hit, err = o.cache.Fetch(ctx, models.KindHTMLFetch, cache.HTMLInputs(r.req.URL), compute)
	}
	if err != nil {
		return err
	}
	if extracted != nil {
		r.page = extracted
		r.navigated = true
	} else {
		r.page = browser.FromHTML(r.req.URL, raw)
	}
	r.page.URL = r.target
	r.page.Cached = hit
	if hit {
		r.log.Debug("markup served from cache", zap.String("hash", r.page.Hash))
	}
	return nil
}

func (o *Orchestrator) planActions(ctx context.Context, r *run) error {
	plan, hit, err := o.llm.PlanActions(ctx, r.model, r.page)
	if err != nil {
		return err
	}
	r.plan = plan
	r.llmCacheHit[llm.StagePlan] = hit
	r.log.Info("actions planned",
		zap.Int("actions", len(plan.Actions)),
		zap.Int("hover_candidates", len(plan.HoverCandidates)),
		zap.Int("popup_candidates", len(plan.PopupCandidates)),
	)
	return nil
}

// executeActions runs the plan in order against a live page. Markup served
// from the cache means the session still has to load the page first.
func (o *Orchestrator) executeActions(ctx context.Context, r *run) error {
	if len(r.plan.Actions) == 0 {
		r.results = []models.ActionResult{}
		return nil
	}
	sess, err := r.lease.Session(ctx)
	if err != nil {
		return &models.ExtractionError{URL: r.req.URL, Err: err}
	}
	if !r.navigated {
		if err := sess.Navigate(ctx, r.req.URL); err != nil {
			return &models.ExtractionError{URL: r.req.URL, Err: err}
		}
		r.navigated = true
	}
	r.results = o.executor.Execute(ctx, sess, r.plan.Actions)
	return ctx.Err()
}

func (o *Orchestrator) interpret(ctx context.Context, r *run) error {
	in, hit, err := o.llm.Interpret(ctx, r.model, r.page, r.results)
	if err != nil {
		return err
	}
	r.interp = in
	r.llmCacheHit[llm.StageInterpret] = hit
	return nil
}

// narrate turns the user's steps into the interpretation without an inference call.
func (o *Orchestrator) narrate(_ context.Context, r *run) error {
	steps := cache.NormalizeText(r.req.Instructions)
	r.interp = models.Interpretation{
		HoverInteractions: []models.HoverInteraction{},
		PopupInteractions: []models.PopupInteraction{},
		NavigationChanges: []models.NavigationChange{},
		Failures:          []models.Failure{},
		OverallSummary:    "User-provided test steps",
		Narrative:         steps,
	}
	return nil
}

func (o *Orchestrator) buildScenarios(ctx context.Context, r *run) error {
	text, hit, err := o.llm.GenerateScenarios(ctx, r.model, r.target, r.plan, r.results, r.interp)
	if err != nil {
		return err
	}
	r.gherkin = text
	r.llmCacheHit[llm.StageGherkin] = hit
	return nil
}

func (o *Orchestrator) convert(ctx context.Context, r *run) error {
	text, hit, err := o.llm.ConvertInstructions(ctx, r.model, r.target, r.page, r.interp)
	if err != nil {
		return err
	}
	r.gherkin = text
	r.llmCacheHit[llm.StageConvert] = hit
	return nil
}

func (r *run) metadata() map[string]any {
	path := make([]string, len(r.path))
	for i, s := range r.path {
		path[i] = string(s)
	}
	md := map[string]any{
		"run_id":        r.id,
		"url":           r.req.URL,
		"mode":          string(r.req.Mode),
		"model":         r.model,
		"state_path":    path,
		"markup_hash":   r.page.Hash,
		"markup_cached": r.page.Cached,
		"page_title":    r.page.Meta.Title,
		"llm_cached":    r.llmCacheHit,
	}
	if r.req.Mode == models.ModeCustom {
		md["test_steps_length"] = len(r.req.Instructions)
		if r.req.SourceName != "" {
			md["source_file"] = r.req.SourceName
		}
		return md
	}
	failed := 0
	for _, res := range r.results {
		if !res.Succeeded {
			failed++
		}
	}
	md["hover_candidates"] = len(r.plan.HoverCandidates)
	md["popup_candidates"] = len(r.plan.PopupCandidates)
	md["planned_actions"] = len(r.plan.Actions)
	md["actions_executed"] = len(r.results)
	md["errors"] = failed
	return md
}
