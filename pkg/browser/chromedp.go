package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/pario-ai/gherkit/pkg/models"
)

// Chromedp drives a local Chrome over the DevTools protocol.
type Chromedp struct{}

type chromedpSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration
}

func (d *Chromedp) Open(ctx context.Context, opts Options) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(1280, 720),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	taskCtx, cancel := chromedp.NewContext(allocCtx)

	// Starts the browser.
	if err := chromedp.Run(taskCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &chromedpSession{ctx: taskCtx, cancel: cancel, allocCancel: allocCancel, timeout: timeout}, nil
}

// run executes actions bounded by the session timeout and by ctx.
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (s *chromedpSession) HTML(ctx context.Context) (string, error) {
	var out string
	err := s.run(ctx, chromedp.OuterHTML("html", &out, chromedp.ByQuery))
	return out, err
}

func (s *chromedpSession) URL(ctx context.Context) (string, error) {
	var out string
	err := s.run(ctx, chromedp.Location(&out))
	return out, err
}

func (s *chromedpSession) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Hover moves the mouse to the centre of the first matching element.
func (s *chromedpSession) Hover(ctx context.Context, selector string) error {
	sel, _ := json.Marshal(selector)
	script := `(() => {
  const el = document.querySelector(` + string(sel) + `);
  if (!el) return [];
  el.scrollIntoView({block: "center", inline: "center"});
  const r = el.getBoundingClientRect();
  return [r.left + r.width / 2, r.top + r.height / 2];
})()`
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var point []float64
		if err := chromedp.Evaluate(script, &point).Do(ctx); err != nil {
			return err
		}
		if len(point) != 2 {
			return fmt.Errorf("no element matches %s", selector)
		}
		return chromedp.MouseEvent(input.MouseMoved, point[0], point[1]).Do(ctx)
	}))
}

func (s *chromedpSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (s *chromedpSession) VisibleCount(ctx context.Context) (int, error) {
	var n int
	err := s.run(ctx, chromedp.Evaluate(visibleCountScript, &n))
	return n, err
}

func (s *chromedpSession) Popup(ctx context.Context) (*models.Popup, error) {
	var raw string
	if err := s.run(ctx, chromedp.Evaluate(popupScript, &raw)); err != nil {
		return nil, err
	}
	return decodePopup(raw)
}

func (s *chromedpSession) Close() error {
	s.cancel()
	s.allocCancel()
	return nil
}
