// Package redis is a cache backend that keeps one hash per fingerprint in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pario-ai/gherkit/pkg/models"
)

const scanCount = 256

// Store implements the cache backend on a Redis client. Entries carry no
// native expiry; expired hashes stay until Clear removes them.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

// New wraps client. Keys are written under prefix.
func New(client goredis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, db int, prefix string) (*Store, error) {
	if prefix == "" {
		return nil, errors.New("redis cache needs a key prefix")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return New(client, prefix), nil
}

func (s *Store) Name() string { return "redis" }

func (s *Store) key(fingerprint string) string { return s.prefix + fingerprint }

func (s *Store) Get(ctx context.Context, fingerprint string) (models.CacheEntry, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(fingerprint)).Result()
	if err != nil {
		return models.CacheEntry{}, false, &models.CacheError{Op: "get", Err: err}
	}
	if len(fields) == 0 {
		return models.CacheEntry{}, false, nil
	}
	e, err := decode(fingerprint, fields)
	if err != nil {
		return models.CacheEntry{}, false, &models.CacheError{Op: "get", Err: err}
	}
	return e, true, nil
}

// Put replaces the hash inside MULTI/EXEC so readers see all or nothing.
func (s *Store) Put(ctx context.Context, e models.CacheEntry) error {
	key := s.key(e.Fingerprint)
	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"kind", string(e.Kind),
			"payload", e.Payload,
			"created_at", e.CreatedAt.UnixNano(),
			"expires_at", e.ExpiresAt.UnixNano(),
		)
		return nil
	})
	if err != nil {
		return &models.CacheError{Op: "put", Err: err}
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, expiredOnly bool, now time.Time) (int64, error) {
	var deleted int64
	err := s.scan(ctx, func(keys []string) error {
		victims := keys
		if expiredOnly {
			victims = victims[:0:0]
			meta, err := s.meta(ctx, keys)
			if err != nil {
				return err
			}
			for i, m := range meta {
				if m.present && m.expiresAt <= now.UnixNano() {
					victims = append(victims, keys[i])
				}
			}
		}
		if len(victims) == 0 {
			return nil
		}
		n, err := s.client.Del(ctx, victims...).Result()
		deleted += n
		return err
	})
	if err != nil {
		return deleted, &models.CacheError{Op: "clear", Err: err}
	}
	return deleted, nil
}

func (s *Store) Stats(ctx context.Context, now time.Time) (models.CacheStats, error) {
	st := models.CacheStats{ByKind: make(map[models.CacheKind]int64)}
	err := s.scan(ctx, func(keys []string) error {
		meta, err := s.meta(ctx, keys)
		if err != nil {
			return err
		}
		for _, m := range meta {
			if !m.present {
				continue
			}
			st.Entries++
			if m.expiresAt <= now.UnixNano() {
				st.Expired++
			}
			st.PayloadBytes += m.size
			st.ByKind[models.CacheKind(m.kind)]++
		}
		return nil
	})
	if err != nil {
		return models.CacheStats{}, &models.CacheError{Op: "stats", Err: err}
	}
	return st, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanCount).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

type entryMeta struct {
	present   bool
	kind      string
	expiresAt int64
	size      int64
}

func (s *Store) meta(ctx context.Context, keys []string) ([]entryMeta, error) {
	fields := make([]*goredis.SliceCmd, len(keys))
	sizes := make([]*goredis.IntCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, k := range keys {
			fields[i] = p.HMGet(ctx, k, "kind", "expires_at")
			sizes[i] = p.HStrLen(ctx, k, "payload")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]entryMeta, len(keys))
	for i := range keys {
		vals := fields[i].Val()
		if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
			continue
		}
		kind, _ := vals[0].(string)
		exp, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
		if err != nil {
			continue
		}
		out[i] = entryMeta{present: true, kind: kind, expiresAt: exp, size: sizes[i].Val()}
	}
	return out, nil
}

func decode(fingerprint string, fields map[string]string) (models.CacheEntry, error) {
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("decode created_at: %w", err)
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("decode expires_at: %w", err)
	}
	return models.CacheEntry{
		Fingerprint: fingerprint,
		Kind:        models.CacheKind(fields["kind"]),
		Payload:     fields["payload"],
		CreatedAt:   time.Unix(0, created).UTC(),
		ExpiresAt:   time.Unix(0, expires).UTC(),
	}, nil
}
