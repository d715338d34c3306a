// Package browsertest provides an in-memory browser driver for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pario-ai/gherkit/pkg/browser"
	"github.com/pario-ai/gherkit/pkg/models"
)

// ErrUnreachable is returned when navigating to a URL the Site does not serve.
var ErrUnreachable = errors.New("net::ERR_NAME_NOT_RESOLVED")

// Element describes how a selector reacts to interaction.
type Element struct {
	// Reveals is how many elements become visible on hover.
	Reveals int
	// NavigatesTo is the URL a click leads to.
	NavigatesTo string
	// Opens is the popup a click opens.
	Opens *models.Popup
	// Closes makes a click dismiss the current popup.
	Closes bool
}

// Site is a set of pages keyed by URL plus the elements on them.
type Site struct {
	Pages    map[string]string
	Elements map[string]Element
}

// Driver opens sessions over a Site and counts them.
type Driver struct {
	Site    *Site
	OpenErr error

	mu     sync.Mutex
	opened int
	closed int
}

func (d *Driver) Open(context.Context, browser.Options) (browser.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.opened++
	return &Session{driver: d, site: d.Site, visible: 10}, nil
}

// Opened is the number of sessions started.
func (d *Driver) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Closed is the number of sessions closed.
func (d *Driver) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Session is a fake page.
type Session struct {
	driver  *Driver
	site    *Site
	url     string
	visible int
	popup   *models.Popup
	closed  bool

	// Actions records every hover and click performed, in order.
	Actions []string
}

func (s *Session) Navigate(_ context.Context, url string) error {
	if _, ok := s.site.Pages[url]; !ok {
		return fmt.Errorf("goto %s: %w", url, ErrUnreachable)
	}
	s.url = url
	return nil
}

func (s *Session) HTML(context.Context) (string, error) {
	if s.url == "" {
		return "", errors.New("no page loaded")
	}
	return s.site.Pages[s.url], nil
}

func (s *Session) URL(context.Context) (string, error) { return s.url, nil }

func (s *Session) WaitVisible(_ context.Context, selector string) error {
	if _, ok := s.site.Elements[selector]; !ok {
		return fmt.Errorf("timeout waiting for %s to be visible", selector)
	}
	return nil
}

func (s *Session) Hover(_ context.Context, selector string) error {
	el, ok := s.site.Elements[selector]
	if !ok {
		return fmt.Errorf("no element matches %s", selector)
	}
	s.Actions = append(s.Actions, "hover "+selector)
	s.visible += el.Reveals
	return nil
}

func (s *Session) Click(_ context.Context, selector string) error {
	el, ok := s.site.Elements[selector]
	if !ok {
		return fmt.Errorf("no element matches %s", selector)
	}
	s.Actions = append(s.Actions, "click "+selector)
	if el.NavigatesTo != "" {
		s.url = el.NavigatesTo
	}
	if el.Opens != nil {
		s.popup = el.Opens
	}
	if el.Closes {
		s.popup = nil
	}
	return nil
}

func (s *Session) VisibleCount(context.Context) (int, error) { return s.visible, nil }

func (s *Session) Popup(context.Context) (*models.Popup, error) { return s.popup, nil }

func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.driver.mu.Lock()
	s.driver.closed++
	s.driver.mu.Unlock()
	return nil
}
