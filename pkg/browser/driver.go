// Package browser drives a real browser to load pages and perform the
// hover and click actions of an action plan.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pario-ai/gherkit/pkg/models"
)

// Options configures a browser session.
type Options struct {
	Headless bool
	// Timeout bounds navigation and every element wait.
	Timeout time.Duration
}

// Driver starts browser sessions.
type Driver interface {
	Open(ctx context.Context, opts Options) (Session, error)
}

// Session is one browser page. It is not safe for concurrent use and must
// be closed by whoever opened it.
type Session interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, selector string) error
	Hover(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	// VisibleCount is the number of currently visible elements.
	VisibleCount(ctx context.Context) (int, error)
	// Popup returns the first visible modal or dialog, or nil.
	Popup(ctx context.Context) (*models.Popup, error)
	Close() error
}

// New returns the driver registered under name.
func New(name string) (Driver, error) {
	switch name {
	case "", "playwright":
		return &Playwright{}, nil
	case "chromedp":
		return &Chromedp{}, nil
	}
	return nil, fmt.Errorf("unknown browser driver %q", name)
}

// Lease opens a session on first use and closes it once. A run holds one
// lease so the browser is only started when a stage needs it.
type Lease struct {
	driver Driver
	opts   Options

	mu   sync.Mutex
	sess Session
}

func NewLease(d Driver, opts Options) *Lease {
	return &Lease{driver: d, opts: opts}
}

// Session returns the leased session, opening it if needed.
func (l *Lease) Session(ctx context.Context) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sess != nil {
		return l.sess, nil
	}
	s, err := l.driver.Open(ctx, l.opts)
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	l.sess = s
	return s, nil
}

// Opened reports whether a session was started.
func (l *Lease) Opened() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess != nil
}

// Close releases the session if one was opened.
func (l *Lease) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sess == nil {
		return nil
	}
	err := l.sess.Close()
	l.sess = nil
	return err
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Modal patterns probed after a click, most specific first.
var modalSelectors = []string{
	"[role='dialog']",
	"[role='alertdialog']",
	"[aria-modal='true']",
	"dialog[open]",
	".modal.show",
	".modal-dialog",
	".modal",
	".popup",
	"[class*='modal']",
	"[class*='popup']",
	"[class*='dialog']",
}

// popupScript returns a JSON-encoded models.Popup for the first visible
// modal, or an empty string.
var popupScript = func() string {
	sels, _ := json.Marshal(modalSelectors)
	return `(() => {
  const visible = (el) => {
    const s = window.getComputedStyle(el);
    if (s.display === "none" || s.visibility === "hidden" || s.opacity === "0") return false;
    const r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  };
  for (const sel of ` + string(sels) + `) {
    const el = Array.from(document.querySelectorAll(sel)).find(visible);
    if (!el) continue;
    const heading = el.querySelector("h1, h2, h3, .modal-title, .popup-title, [role='heading'], .title");
    const buttons = Array.from(el.querySelectorAll("button, a, [role='button'], .btn, input[type='button']"))
      .filter(visible)
      .map((b) => (b.innerText || b.value || b.getAttribute("aria-label") || "").trim())
      .filter((t) => t.length > 0)
      .slice(0, 10);
    return JSON.stringify({
      selector: sel,
      title: heading ? heading.innerText.trim() : "",
      text: (el.innerText || "").trim().slice(0, 1000),
      buttons: buttons,
    });
  }
  return "";
})()`
}()

const visibleCountScript = `(() => {
  let n = 0;
  for (const el of document.querySelectorAll("*")) {
    const r = el.getBoundingClientRect();
    if (r.width === 0 || r.height === 0) continue;
    const s = window.getComputedStyle(el);
    if (s.visibility === "hidden" || s.display === "none") continue;
    n++;
  }
  return n;
})()`

func decodePopup(raw string) (*models.Popup, error) {
	if raw == "" {
		return nil, nil
	}
	var p models.Popup
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode popup: %w", err)
	}
	return &p, nil
}
