package artifact

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	artifactrepo "htmlchat/internal/gateway/repository/artifact"
)

type Store = artifactrepo.Store

type CacheConfig struct {
	BlobTTL        time.Duration
	BlobMaxEntries int
	// Blobs larger than this are passed through uncached.
	BlobMaxBytes int

	ListTTL        time.Duration
	ListMaxEntries int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		BlobTTL:        5 * time.Minute,
		BlobMaxEntries: 256,
		BlobMaxBytes:   2 * 1024 * 1024, // 2MiB
		ListTTL:        30 * time.Second,
		ListMaxEntries: 256,
	}
}

type MetricsSnapshot struct {
	BlobHits       uint64 `json:"blobHits"`
	BlobMisses     uint64 `json:"blobMisses"`
	ListHits       uint64 `json:"listHits"`
	ListMisses     uint64 `json:"listMisses"`
	OriginReads    uint64 `json:"originReads"`
	OriginWrites   uint64 `json:"originWrites"`
	OriginReadErr  uint64 `json:"originReadErrors"`
	OriginWriteErr uint64 `json:"originWriteErrors"`
}

type Metrics struct {
	blobHits       atomic.Uint64
	blobMisses     atomic.Uint64
	listHits       atomic.Uint64
	listMisses     atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

func (m *Metrics) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		BlobHits:       m.blobHits.Load(),
		BlobMisses:     m.blobMisses.Load(),
		ListHits:       m.listHits.Load(),
		ListMisses:     m.listMisses.Load(),
		OriginReads:    m.originReads.Load(),
		OriginWrites:   m.originWrites.Load(),
		OriginReadErr:  m.originReadErr.Load(),
		OriginWriteErr: m.originWriteErr.Load(),
	}
}

// CachedStore puts read-through caches in front of a remote archive.
// Writes go to the origin first and only then refresh the caches.
type CachedStore struct {
	origin   Store
	maxBlob  int
	blobs    *expirable.LRU[string, []byte]
	listings *expirable.LRU[string, []string]
	metrics  Metrics
}

var _ Store = (*CachedStore)(nil)

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.BlobTTL <= 0 {
		cfg.BlobTTL = def.BlobTTL
	}
	if cfg.BlobMaxEntries <= 0 {
		cfg.BlobMaxEntries = def.BlobMaxEntries
	}
	if cfg.BlobMaxBytes < 0 {
		cfg.BlobMaxBytes = def.BlobMaxBytes
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = def.ListTTL
	}
	if cfg.ListMaxEntries <= 0 {
		cfg.ListMaxEntries = def.ListMaxEntries
	}

	return &CachedStore{
		origin:   origin,
		maxBlob:  cfg.BlobMaxBytes,
		blobs:    expirable.NewLRU[string, []byte](cfg.BlobMaxEntries, nil, cfg.BlobTTL),
		listings: expirable.NewLRU[string, []string](cfg.ListMaxEntries, nil, cfg.ListTTL),
	}
}

func (s *CachedStore) Put(ctx context.Context, sessionID, path string, content []byte) error {
	s.metrics.originWrites.Add(1)
	if err := s.origin.Put(ctx, sessionID, path, content); err != nil {
		s.metrics.originWriteErr.Add(1)
		return err
	}
	key := cacheKey(sessionID, path)
	s.remember(key, content)
	s.listings.Remove(strings.TrimSpace(sessionID))
	return nil
}

func (s *CachedStore) Get(ctx context.Context, sessionID, path string) ([]byte, error) {
	key := cacheKey(sessionID, path)
	if raw, ok := s.blobs.Get(key); ok {
		s.metrics.blobHits.Add(1)
		return append([]byte(nil), raw...), nil
	}
	s.metrics.blobMisses.Add(1)
	s.metrics.originReads.Add(1)

	raw, err := s.origin.Get(ctx, sessionID, path)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	s.remember(key, raw)
	return append([]byte(nil), raw...), nil
}

func (s *CachedStore) List(ctx context.Context, sessionID string) ([]string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if list, ok := s.listings.Get(sessionID); ok {
		s.metrics.listHits.Add(1)
		return append([]string(nil), list...), nil
	}
	s.metrics.listMisses.Add(1)
	s.metrics.originReads.Add(1)

	list, err := s.origin.List(ctx, sessionID)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	s.listings.Add(sessionID, append([]string(nil), list...))
	return append([]string(nil), list...), nil
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	return s.metrics.snapshot()
}

func (s *CachedStore) remember(key string, raw []byte) {
	if len(raw) > s.maxBlob {
		s.blobs.Remove(key)
		return
	}
	s.blobs.Add(key, append([]byte(nil), raw...))
}

func cacheKey(sessionID, path string) string {
	return strings.TrimSpace(sessionID) + "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
}
