package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.CacheLookup("html_fetch", true)
	m.CacheError("get")
	m.LLMRequest("plan", "gpt-4o", "ok", time.Second)
	m.LLMTokens("gpt-4o", 1, 2)
	m.PipelineRun("auto", "DONE")
	m.Stage("MARKUP_FETCHED", time.Second)
	m.Action("click", false)
	m.HTTPRequest("GET", "/health", 200, time.Millisecond)
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.CacheLookup("html_fetch", true)
	m.CacheLookup("html_fetch", false)
	m.CacheLookup("html_fetch", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("html_fetch", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("html_fetch", "miss")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.PipelineRun("custom", "DONE")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `gherkit_pipeline_runs_total{mode="custom",state="DONE"} 1`))
}
