package browser_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/gherkit/pkg/browser"
	"github.com/pario-ai/gherkit/pkg/browser/browsertest"
	"github.com/pario-ai/gherkit/pkg/models"
)

func TestExtract(t *testing.T) {
	site := &browsertest.Site{Pages: map[string]string{
		"https://example.test/page": `<html><head><title>Hi</title></head><body><a href="/x">x</a></body></html>`,
	}}
	d := &browsertest.Driver{Site: site}
	sess, err := d.Open(context.Background(), browser.Options{})
	require.NoError(t, err)

	page, err := browser.NewExtractor(0, nil).Extract(context.Background(), sess, "https://example.test/page")
	require.NoError(t, err)
	assert.Equal(t, "Hi", page.Meta.Title)
	assert.Equal(t, 1, page.Meta.Links)
	assert.Len(t, page.Hash, 64)
	assert.Equal(t, "https://example.test/page", page.FinalURL)
}

func TestExtractUnreachable(t *testing.T) {
	d := &browsertest.Driver{Site: &browsertest.Site{}}
	sess, err := d.Open(context.Background(), browser.Options{})
	require.NoError(t, err)

	_, err = browser.NewExtractor(0, nil).Extract(context.Background(), sess, "https://down.test")
	var ee *models.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "https://down.test", ee.URL)
	assert.True(t, errors.Is(err, browsertest.ErrUnreachable))
}

func TestLease(t *testing.T) {
	d := &browsertest.Driver{Site: &browsertest.Site{}}
	l := browser.NewLease(d, browser.Options{Headless: true})
	assert.False(t, l.Opened())
	require.NoError(t, l.Close(), "closing an unused lease is a no-op")
	assert.Zero(t, d.Opened())

	s1, err := l.Session(context.Background())
	require.NoError(t, err)
	s2, err := l.Session(context.Background())
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, d.Opened())

	require.NoError(t, l.Close())
	assert.Equal(t, 1, d.Closed())
}

func TestNewDriver(t *testing.T) {
	_, err := browser.New("playwright")
	assert.NoError(t, err)
	_, err = browser.New("chromedp")
	assert.NoError(t, err)
	_, err = browser.New("selenium")
	assert.Error(t, err)
}
