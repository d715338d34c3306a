package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/gherkit/pkg/cache"
	"github.com/pario-ai/gherkit/pkg/models"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := New(client, "test:cache:")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestPutGet(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, models.CacheEntry{
		Fingerprint: "abc",
		Kind:        models.KindLLMCompletion,
		Payload:     `{"action_plan":[]}`,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}))
	assert.True(t, mr.Exists("test:cache:abc"))

	e, ok, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.KindLLMCompletion, e.Kind)
	assert.Equal(t, `{"action_plan":[]}`, e.Payload)
	assert.True(t, e.ExpiresAt.Equal(now.Add(time.Hour)))

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearAndStats(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	put := func(fp string, kind models.CacheKind, created time.Time, ttl time.Duration) {
		require.NoError(t, s.Put(ctx, models.CacheEntry{
			Fingerprint: fp, Kind: kind, Payload: "xyz", CreatedAt: created, ExpiresAt: created.Add(ttl),
		}))
	}
	put("a", models.KindHTMLFetch, now, time.Hour)
	put("b", models.KindHTMLFetch, now.Add(-2*time.Hour), time.Hour)
	put("c", models.KindLLMCompletion, now, 0)
	mr.Set("unrelated", "keep")

	st, err := s.Stats(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.Entries)
	assert.EqualValues(t, 2, st.Expired)
	assert.EqualValues(t, 9, st.PayloadBytes)
	assert.EqualValues(t, 2, st.ByKind[models.KindHTMLFetch])

	n, err := s.Clear(ctx, true, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.Clear(ctx, false, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.Clear(ctx, false, now)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, mr.Exists("unrelated"), "keys outside the prefix are untouched")
}

func TestServerDownIsMiss(t *testing.T) {
	s, mr := newTestStore(t)
	c := cache.New(s, time.Hour)
	ctx := context.Background()

	in := cache.HTMLInputs("https://example.test")
	require.NoError(t, c.Put(ctx, models.KindHTMLFetch, in, "<html/>", time.Hour))
	_, ok := c.Get(ctx, models.KindHTMLFetch, in)
	require.True(t, ok)

	mr.Close()
	_, ok = c.Get(ctx, models.KindHTMLFetch, in)
	assert.False(t, ok)
}

func TestDialRequiresPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	_, err := Dial(context.Background(), mr.Addr(), "", 0, "")
	require.Error(t, err)

	s, err := Dial(context.Background(), mr.Addr(), "", 0, "gherkit:cache:")
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
