package models

import "time"

// CacheKind namespaces cache fingerprints by the operation that produced the payload.
type CacheKind string

const (
	KindHTMLFetch     CacheKind = "html_fetch"
	KindLLMCompletion CacheKind = "llm_completion"
)

// CacheEntry stores a cached HTML snapshot or LLM completion.
type CacheEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Kind        CacheKind `json:"kind"`
	Payload     string    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the entry is no longer servable at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// CacheStats reports cache contents and in-process hit/miss counters.
type CacheStats struct {
	Backend      string              `json:"backend"`
	Entries      int64               `json:"entries"`
	Expired      int64               `json:"expired"`
	PayloadBytes int64               `json:"payload_bytes"`
	ByKind       map[CacheKind]int64 `json:"by_kind,omitempty"`
	Hits         int64               `json:"hits"`
	Misses       int64               `json:"misses"`
	TTL          time.Duration       `json:"ttl"`
}
