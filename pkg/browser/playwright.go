package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/pario-ai/gherkit/pkg/models"
)

// Playwright drives Chromium through playwright-go.
type Playwright struct {
	// Install downloads the driver and browser before the first launch.
	Install bool
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	timeout float64
}

func (d *Playwright) Open(_ context.Context, opts Options) (Session, error) {
	if d.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1280, Height: 720},
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("new page: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ms := float64(timeout.Milliseconds())
	page.SetDefaultTimeout(ms)

	return &playwrightSession{pw: pw, browser: browser, bctx: bctx, page: page, timeout: ms}, nil
}

func (s *playwrightSession) Navigate(_ context.Context, url string) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(s.timeout),
	})
	return err
}

func (s *playwrightSession) HTML(context.Context) (string, error) {
	return s.page.Content()
}

func (s *playwrightSession) URL(context.Context) (string, error) {
	return s.page.URL(), nil
}

func (s *playwrightSession) WaitVisible(_ context.Context, selector string) error {
	return s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(s.timeout),
	})
}

func (s *playwrightSession) Hover(_ context.Context, selector string) error {
	return s.page.Locator(selector).First().Hover(playwright.LocatorHoverOptions{
		Timeout: playwright.Float(s.timeout),
	})
}

func (s *playwrightSession) Click(_ context.Context, selector string) error {
	return s.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(s.timeout),
	})
}

func (s *playwrightSession) VisibleCount(context.Context) (int, error) {
	return s.page.Locator("*:visible").Count()
}

func (s *playwrightSession) Popup(context.Context) (*models.Popup, error) {
	v, err := s.page.Evaluate(popupScript)
	if err != nil {
		return nil, err
	}
	raw, _ := v.(string)
	return decodePopup(raw)
}

func (s *playwrightSession) Close() error {
	var first error
	for _, closeFn := range []func() error{
		func() error { return s.bctx.Close() },
		func() error { return s.browser.Close() },
		s.pw.Stop,
	} {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
