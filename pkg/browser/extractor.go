package browser

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/gherkit/pkg/markup"
	"github.com/pario-ai/gherkit/pkg/models"
)

// Extractor loads pages and returns their markup.
type Extractor struct {
	settle time.Duration
	logger *zap.Logger
}

// NewExtractor returns an Extractor that waits settle after navigation
// before reading the DOM.
func NewExtractor(settle time.Duration, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{settle: settle, logger: logger.With(zap.String("component", "extractor"))}
}

// Extract navigates sess to url and reads the rendered markup. Every failure
// is an *models.ExtractionError.
func (e *Extractor) Extract(ctx context.Context, sess Session, url string) (*models.Page, error) {
	start := time.Now()
	if err := sess.Navigate(ctx, url); err != nil {
		return nil, &models.ExtractionError{URL: url, Err: err}
	}
	if err := sleep(ctx, e.settle); err != nil {
		return nil, &models.ExtractionError{URL: url, Err: err}
	}
	raw, err := sess.HTML(ctx)
	if err != nil {
		return nil, &models.ExtractionError{URL: url, Err: err}
	}
	final, err := sess.URL(ctx)
	if err != nil || final == "" {
		final = url
	}

	page := FromHTML(url, raw)
	page.FinalURL = final
	e.logger.Info("page extracted",
		zap.String("url", url),
		zap.String("final_url", final),
		zap.Int("length", page.Meta.Length),
		zap.Duration("elapsed", time.Since(start)),
	)
	return page, nil
}

// FromHTML builds a Page from markup obtained elsewhere, such as the cache.
func FromHTML(url, raw string) *models.Page {
	return &models.Page{
		URL:      url,
		FinalURL: url,
		HTML:     raw,
		Hash:     markup.Hash(raw),
		Meta:     markup.Summarize(raw),
	}
}
