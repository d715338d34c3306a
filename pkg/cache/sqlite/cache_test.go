package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/gherkit/pkg/cache"
	"github.com/pario-ai/gherkit/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(fp string, payload string, created time.Time, ttl time.Duration) models.CacheEntry {
	return models.CacheEntry{
		Fingerprint: fp,
		Kind:        models.KindHTMLFetch,
		Payload:     payload,
		CreatedAt:   created,
		ExpiresAt:   created.Add(ttl),
	}
}

func TestPutAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.Put(ctx, entry("fp1", "<html>hello</html>", now, time.Hour)); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Get(ctx, "fp1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected stored entry")
	}
	if got.Payload != "<html>hello</html>" {
		t.Errorf("unexpected payload: %s", got.Payload)
	}
	if !got.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("expires_at = %v", got.ExpiresAt)
	}
	if got.Kind != models.KindHTMLFetch {
		t.Errorf("kind = %q", got.Kind)
	}

	if _, ok, _ := s.Get(ctx, "fp2"); ok {
		t.Error("expected miss for unknown fingerprint")
	}
}

func TestPutOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_ = s.Put(ctx, entry("fp", "first", now, time.Hour))
	_ = s.Put(ctx, entry("fp", "second", now, time.Hour))

	got, _, err := s.Get(ctx, "fp")
	if err != nil {
		t.Fatal(err)
	}
	if got.Payload != "second" {
		t.Errorf("expected upsert, got %q", got.Payload)
	}
	st, _ := s.Stats(ctx, now)
	if st.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", st.Entries)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_ = s.Put(ctx, entry("live", "12345", now, time.Hour))
	_ = s.Put(ctx, entry("dead", "abc", now.Add(-2*time.Hour), time.Hour))
	llm := entry("llm", "héllo", now, time.Hour)
	llm.Kind = models.KindLLMCompletion
	_ = s.Put(ctx, llm)

	st, err := s.Stats(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 3 {
		t.Errorf("expected 3 entries, got %d", st.Entries)
	}
	if st.Expired != 1 {
		t.Errorf("expected 1 expired, got %d", st.Expired)
	}
	if st.PayloadBytes != 5+3+6 {
		t.Errorf("expected 14 payload bytes, got %d", st.PayloadBytes)
	}
	if st.ByKind[models.KindHTMLFetch] != 2 || st.ByKind[models.KindLLMCompletion] != 1 {
		t.Errorf("unexpected per-kind counts: %v", st.ByKind)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_ = s.Put(ctx, entry("h1", "data", now, time.Hour))
	_ = s.Put(ctx, entry("h2", "data", now.Add(-time.Hour), time.Hour))
	_ = s.Put(ctx, entry("h3", "data", now, 0))

	n, err := s.Clear(ctx, true, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 expired rows deleted, got %d", n)
	}

	n, err = s.Clear(ctx, false, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 row deleted, got %d", n)
	}

	n, _ = s.Clear(ctx, false, now)
	if n != 0 {
		t.Errorf("second clear should delete nothing, got %d", n)
	}
}

func TestThroughCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := cache.New(s, time.Hour)

	in := cache.HTMLInputs("https://Example.test/page/")
	require.NoError(t, c.Put(ctx, models.KindHTMLFetch, in, "<html></html>", time.Hour))

	got, ok := c.Get(ctx, models.KindHTMLFetch, cache.HTMLInputs("https://example.test/page"))
	require.True(t, ok)
	assert.Equal(t, "<html></html>", got)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", st.Backend)
	assert.EqualValues(t, 1, st.Hits)
}

func TestBackendFailureIsMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cache_entries").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_cache_expires").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT kind, payload, created_at, expires_at FROM cache_entries").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectExec("INSERT OR REPLACE INTO cache_entries").
		WillReturnError(errors.New("database is locked"))
	mock.ExpectClose()

	s, err := Open(db)
	require.NoError(t, err)
	c := cache.New(s, time.Hour)
	ctx := context.Background()

	_, ok := c.Get(ctx, models.KindLLMCompletion, cache.CompletionInputs("prompt", "gpt-4o"))
	assert.False(t, ok, "storage failure must read as a miss")

	err = c.Put(ctx, models.KindLLMCompletion, cache.CompletionInputs("prompt", "gpt-4o"), "{}", time.Hour)
	var ce *models.CacheError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "put", ce.Op)

	require.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
