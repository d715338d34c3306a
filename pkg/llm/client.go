package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pario-ai/gherkit/pkg/cache"
	"github.com/pario-ai/gherkit/pkg/markup"
	"github.com/pario-ai/gherkit/pkg/metrics"
	"github.com/pario-ai/gherkit/pkg/models"
)

// Budget vetoes calls once a token budget is used up.
type Budget interface {
	Check(ctx context.Context, model string) error
}

// UsageRecorder stores the token usage of each outbound call.
type UsageRecorder interface {
	Record(ctx context.Context, rec models.UsageRecord) error
}

// Options configures a Client. Zero values disable the optional parts.
type Options struct {
	// Model is used when a call does not name one.
	Model             string
	Cache             *cache.Cache
	Budget            Budget
	Usage             UsageRecorder
	RequestsPerMinute int
	MaxPlanChars      int
	MaxContextChars   int
	Logger            *zap.Logger
	Metrics           *metrics.Metrics
}

// Client turns pipeline data into prompts and validated structured
// results. Completions are served from the cache when possible; only
// responses that validate are stored.
type Client struct {
	completer       Completer
	model           string
	cache           *cache.Cache
	budget          Budget
	usage           UsageRecorder
	limiter         *rate.Limiter
	maxPlanChars    int
	maxContextChars int
	logger          *zap.Logger
	metrics         *metrics.Metrics
}

// NewClient wraps completer.
func NewClient(completer Completer, opts Options) *Client {
	c := &Client{
		completer:       completer,
		model:           opts.Model,
		cache:           opts.Cache,
		budget:          opts.Budget,
		usage:           opts.Usage,
		maxPlanChars:    opts.MaxPlanChars,
		maxContextChars: opts.MaxContextChars,
		logger:          zap.NewNop(),
		metrics:         opts.Metrics,
	}
	if opts.Logger != nil {
		c.logger = opts.Logger.With(zap.String("component", "llm"))
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	if c.maxPlanChars <= 0 {
		c.maxPlanChars = 50000
	}
	if c.maxContextChars <= 0 {
		c.maxContextChars = 10000
	}
	return c
}

// Model resolves the model a call will use.
func (c *Client) Model(requested string) string {
	if m := strings.TrimSpace(requested); m != "" {
		return m
	}
	return c.model
}

// PlanActions asks for hover and popup candidates and an ordered action plan for page.
func (c *Client) PlanActions(ctx context.Context, model string, page *models.Page) (models.ActionPlan, bool, error) {
	html := markup.Reduce(page.HTML, c.maxPlanChars)
	req := Request{
		Model: c.Model(model),
		Messages: []Message{
			{Role: RoleSystem, Content: jsonSystemPrompt},
			{Role: RoleUser, Content: fmt.Sprintf(planPrompt, html)},
		},
		Temperature: 0.3,
		MaxTokens:   2000,
		JSON:        true,
	}
	return complete(ctx, c, StagePlan, SchemaActionPlan, req, ParseActionPlan)
}

// Interpret asks which executed interactions are worth testing.
func (c *Client) Interpret(ctx context.Context, model string, page *models.Page, results []models.ActionResult) (models.Interpretation, bool, error) {
	if results == nil {
		results = []models.ActionResult{}
	}
	req := Request{
		Model: c.Model(model),
		Messages: []Message{
			{Role: RoleSystem, Content: jsonSystemPrompt},
			{Role: RoleUser, Content: fmt.Sprintf(interpretPrompt,
				page.URL, markup.Reduce(page.HTML, c.maxContextChars), indentJSON(results))},
		},
		Temperature: 0.3,
		MaxTokens:   2000,
		JSON:        true,
	}
	return complete(ctx, c, StageInterpret, SchemaInterpretation, req, ParseInterpretation)
}

// GenerateScenarios writes the feature file text for an executed plan.
func (c *Client) GenerateScenarios(ctx context.Context, model, url string, plan models.ActionPlan, results []models.ActionResult, in models.Interpretation) (string, bool, error) {
	if results == nil {
		results = []models.ActionResult{}
	}
	req := Request{
		Model: c.Model(model),
		Messages: []Message{
			{Role: RoleSystem, Content: gherkinSystemPrompt},
			{Role: RoleUser, Content: fmt.Sprintf(gherkinPrompt, url, indentJSON(plan), indentJSON(results), indentJSON(in))},
		},
		Temperature: 0.4,
		MaxTokens:   2500,
	}
	return complete(ctx, c, StageGherkin, SchemaGherkin, req, ParseGherkin)
}

// ConvertInstructions turns user-written steps into a feature file.
func (c *Client) ConvertInstructions(ctx context.Context, model, url string, page *models.Page, in models.Interpretation) (string, bool, error) {
	if strings.TrimSpace(in.Narrative) == "" {
		return "", false, errors.New("no instructions to convert")
	}
	req := Request{
		Model: c.Model(model),
		Messages: []Message{
			{Role: RoleSystem, Content: convertSystemPrompt},
			{Role: RoleUser, Content: fmt.Sprintf(convertPrompt, url, pageSummary(page), in.Narrative)},
		},
		Temperature: 0.3,
		MaxTokens:   2500,
	}
	return complete(ctx, c, StageConvert, SchemaGherkin, req, ParseGherkin)
}

// complete serves req from the cache or the completer, validating with
// parse. A malformed reply gets one clarifying follow-up; if that also
// fails the result is an *models.LLMResponseError. The bool result reports
// a cache hit.
func complete[T any](ctx context.Context, c *Client, stage, schema string, req Request, parse func(string) (T, *ParseFailure)) (T, bool, error) {
	var zero T
	inputs := cache.CompletionInputs(promptKey(req), req.Model)
	log := c.logger.With(
		zap.String("run_id", models.RunIDFromContext(ctx)),
		zap.String("stage", stage),
		zap.String("model", req.Model),
	)

	if payload, ok := c.cache.Get(ctx, models.KindLLMCompletion, inputs); ok {
		v, pf := parse(payload)
		if pf == nil {
			log.Debug("completion served from cache")
			return v, true, nil
		}
		log.Warn("cached completion no longer validates, recomputing", zap.String("reason", pf.Reason))
	}

	resp, err := c.send(ctx, stage, req)
	if err != nil {
		return zero, false, err
	}
	v, pf := parse(resp.Content)
	if pf == nil {
		_ = c.cache.Put(ctx, models.KindLLMCompletion, inputs, resp.Content, c.cache.TTL())
		return v, false, nil
	}

	log.Warn("malformed completion, sending clarification", zap.String("reason", pf.Reason))
	retry := req
	retry.Messages = append(append([]Message(nil), req.Messages...),
		Message{Role: RoleAssistant, Content: resp.Content},
		Message{Role: RoleUser, Content: clarifyPrompt(schema, pf)},
	)
	resp, err = c.send(ctx, stage, retry)
	if err != nil {
		return zero, false, err
	}
	v, pf = parse(resp.Content)
	if pf != nil {
		return zero, false, &models.LLMResponseError{Schema: schema, Raw: pf.Raw, Reason: pf.Reason, Attempts: 2}
	}
	_ = c.cache.Put(ctx, models.KindLLMCompletion, inputs, resp.Content, c.cache.TTL())
	return v, false, nil
}

// send makes one outbound call after the rate limit and budget checks and
// records its usage.
func (c *Client) send(ctx context.Context, stage string, req Request) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, &models.LLMTransportError{Model: req.Model, Err: err}
		}
	}
	if c.budget != nil {
		if err := c.budget.Check(ctx, req.Model); err != nil {
			return Response{}, fmt.Errorf("budget check (%s): %w", req.Model, err)
		}
	}

	start := time.Now()
	resp, err := c.completer.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.LLMRequest(stage, req.Model, "error", elapsed)
		var te *models.LLMTransportError
		if !errors.As(err, &te) {
			err = &models.LLMTransportError{Model: req.Model, Err: err}
		}
		return Response{}, err
	}
	c.metrics.LLMRequest(stage, req.Model, "ok", elapsed)
	c.metrics.LLMTokens(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	c.logger.Info("inference call",
		zap.String("run_id", models.RunIDFromContext(ctx)),
		zap.String("stage", stage),
		zap.String("model", req.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", elapsed),
	)

	if c.usage != nil {
		rec := models.UsageRecord{
			RunID:            models.RunIDFromContext(ctx),
			Stage:            stage,
			Model:            req.Model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			CreatedAt:        time.Now().UTC(),
		}
		if err := c.usage.Record(ctx, rec); err != nil {
			c.logger.Warn("record usage failed", zap.Error(err))
		}
	}
	return resp, nil
}

// promptKey is the text a completion is cached under.
func promptKey(req Request) string {
	var b strings.Builder
	for _, m := range req.Messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}
