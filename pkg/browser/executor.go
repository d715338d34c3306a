package browser

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/gherkit/pkg/metrics"
	"github.com/pario-ai/gherkit/pkg/models"
)

// Executor performs planned actions one at a time and records what each
// one changed on the page. A failing action never stops the plan.
type Executor struct {
	hoverSettle time.Duration
	clickSettle time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewExecutor returns an Executor that waits settle after clicks and half
// of it after hovers before observing effects.
func NewExecutor(settle time.Duration, logger *zap.Logger, m *metrics.Metrics) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		hoverSettle: settle / 2,
		clickSettle: settle,
		logger:      logger.With(zap.String("component", "executor")),
		metrics:     m,
	}
}

// Execute runs actions in order against sess and returns one result per
// action, in the same order.
func (x *Executor) Execute(ctx context.Context, sess Session, actions []models.PlannedAction) []models.ActionResult {
	results := make([]models.ActionResult, 0, len(actions))
	for i, a := range actions {
		res := models.ActionResult{
			Index:       i + 1,
			Action:      a.Action,
			Target:      a.Selector,
			Description: a.Description,
			Effects:     models.Effects{},
		}

		var err error
		switch {
		case !a.Action.Valid():
			err = errors.New("unsupported action")
		case a.Selector == "":
			err = errors.New("empty selector")
		case a.Action == models.ActionHover:
			err = x.hover(ctx, sess, &res)
		default:
			err = x.click(ctx, sess, &res)
		}

		if err != nil {
			aerr := &models.ActionExecutionError{Action: a.Action, Selector: a.Selector, Err: err}
			res.Succeeded = false
			res.ErrorDetail = aerr.Error()
			x.logger.Warn("action failed",
				zap.String("run_id", models.RunIDFromContext(ctx)),
				zap.Int("index", res.Index),
				zap.Error(aerr),
			)
		} else {
			res.Succeeded = true
			x.logger.Info("action executed",
				zap.String("run_id", models.RunIDFromContext(ctx)),
				zap.Int("index", res.Index),
				zap.String("action", string(a.Action)),
				zap.String("selector", a.Selector),
				zap.Any("effects", res.Effects),
			)
		}
		x.metrics.Action(string(a.Action), res.Succeeded)
		results = append(results, res)
	}
	return results
}

func (x *Executor) hover(ctx context.Context, sess Session, res *models.ActionResult) error {
	before, err := sess.VisibleCount(ctx)
	if err != nil {
		return err
	}
	res.VisibleBefore = before

	if err := sess.WaitVisible(ctx, res.Target); err != nil {
		return err
	}
	if err := sess.Hover(ctx, res.Target); err != nil {
		return err
	}
	if err := sleep(ctx, x.hoverSettle); err != nil {
		return err
	}

	after, err := sess.VisibleCount(ctx)
	if err != nil {
		return err
	}
	res.VisibleAfter = after
	if after > before {
		res.Effects.Add(models.EffectElementAppeared)
	}
	return nil
}

func (x *Executor) click(ctx context.Context, sess Session, res *models.ActionResult) error {
	urlBefore, err := sess.URL(ctx)
	if err != nil {
		return err
	}
	res.URLBefore = urlBefore
	popupBefore, err := sess.Popup(ctx)
	if err != nil {
		return err
	}

	if err := sess.WaitVisible(ctx, res.Target); err != nil {
		return err
	}
	if err := sess.Click(ctx, res.Target); err != nil {
		return err
	}
	if err := sleep(ctx, x.clickSettle); err != nil {
		return err
	}

	urlAfter, err := sess.URL(ctx)
	if err != nil {
		return err
	}
	res.URLAfter = urlAfter
	if urlAfter != urlBefore {
		res.Effects.Add(models.EffectURLChanged)
	}

	// A failed probe after a successful click is not an action failure.
	popupAfter, err := sess.Popup(ctx)
	if err != nil {
		x.logger.Debug("popup probe failed", zap.Error(err))
		return nil
	}
	switch {
	case popupAfter != nil && (popupBefore == nil || popupAfter.Selector != popupBefore.Selector || popupAfter.Title != popupBefore.Title):
		res.Effects.Add(models.EffectPopupOpened)
		res.Popup = popupAfter
	case popupAfter == nil && popupBefore != nil:
		res.Effects.Add(models.EffectPopupClosed)
	}
	return nil
}
