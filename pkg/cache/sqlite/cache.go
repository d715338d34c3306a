package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/gherkit/pkg/models"
)

// Store is a cache backend on a local SQLite file.
type Store struct {
	db *sql.DB
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	fingerprint TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
`

const createExpiryIndex = `CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at)`

// DSN returns a modernc.org/sqlite data source for path with WAL journaling
// and a busy timeout so concurrent writers wait instead of failing.
func DSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// New opens (creating if needed) the cache database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	s, err := Open(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Open wraps an existing database handle and creates the schema.
func Open(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(createCacheTable); err != nil {
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	if _, err := db.Exec(createExpiryIndex); err != nil {
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Name() string { return "sqlite" }

// Get returns the stored entry for fingerprint, expired or not.
func (s *Store) Get(ctx context.Context, fingerprint string) (models.CacheEntry, bool, error) {
	var (
		e                    models.CacheEntry
		kind                 string
		createdAt, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, payload, created_at, expires_at FROM cache_entries WHERE fingerprint = ?`,
		fingerprint,
	).Scan(&kind, &e.Payload, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CacheEntry{}, false, nil
	}
	if err != nil {
		return models.CacheEntry{}, false, &models.CacheError{Op: "get", Err: err}
	}

	e.Fingerprint = fingerprint
	e.Kind = models.CacheKind(kind)
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	e.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return e, true, nil
}

// Put upserts an entry in a single statement.
func (s *Store) Put(ctx context.Context, e models.CacheEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (fingerprint, kind, payload, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.Fingerprint, string(e.Kind), e.Payload, e.CreatedAt.UnixNano(), e.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return &models.CacheError{Op: "put", Err: err}
	}
	return nil
}

// Clear removes entries. If expiredOnly is true, only entries with
// expires_at <= now are removed.
func (s *Store) Clear(ctx context.Context, expiredOnly bool, now time.Time) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if expiredOnly {
		res, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, now.UnixNano())
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	}
	if err != nil {
		return 0, &models.CacheError{Op: "clear", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &models.CacheError{Op: "clear", Err: err}
	}
	return n, nil
}

// Stats returns row counts and aggregate payload size.
func (s *Store) Stats(ctx context.Context, now time.Time) (models.CacheStats, error) {
	var st models.CacheStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(LENGTH(CAST(payload AS BLOB))), 0)
		 FROM cache_entries`, now.UnixNano(),
	).Scan(&st.Entries, &st.Expired, &st.PayloadBytes)
	if err != nil {
		return models.CacheStats{}, &models.CacheError{Op: "stats", Err: err}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM cache_entries GROUP BY kind`)
	if err != nil {
		return models.CacheStats{}, &models.CacheError{Op: "stats", Err: err}
	}
	defer rows.Close()

	st.ByKind = make(map[models.CacheKind]int64)
	for rows.Next() {
		var (
			kind string
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return models.CacheStats{}, &models.CacheError{Op: "stats", Err: err}
		}
		st.ByKind[models.CacheKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return models.CacheStats{}, &models.CacheError{Op: "stats", Err: err}
	}
	return st, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
