package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"htmlchat/internal/chat"
)

const (
	DefaultTTL         = 30 * time.Minute
	DefaultMaxSessions = 1024
)

// Session is one browser client and the chat store it owns.
type Session struct {
	ID        string
	Store     *chat.Store
	CreatedAt time.Time
}

// StoreFactory builds the store for a new session.
type StoreFactory func(id string) *chat.Store

// Registry keeps live sessions. Idle sessions expire after the TTL and the
// least recently used one is evicted when the registry is full; either way
// its store is closed and never restored.
type Registry struct {
	mu       sync.Mutex
	cache    *expirable.LRU[string, *Session]
	newStore StoreFactory
	logger   *zap.Logger
}

func NewRegistry(maxSessions int, ttl time.Duration, factory StoreFactory, logger *zap.Logger) *Registry {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if factory == nil {
		factory = func(string) *chat.Store { return chat.NewStore() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		newStore: factory,
		logger:   logger,
	}
	r.cache = expirable.NewLRU[string, *Session](maxSessions, r.onEvict, ttl)
	return r
}

// GetOrCreate returns the live session for id, refreshing its TTL, or a new
// session with a fresh id when id is empty or unknown.
func (r *Registry) GetOrCreate(id string) (*Session, bool) {
	id = strings.TrimSpace(id)
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if sess, ok := r.cache.Get(id); ok {
			r.cache.Add(id, sess)
			return sess, false
		}
	}
	newID := uuid.NewString()
	sess := &Session{
		ID:        newID,
		Store:     r.newStore(newID),
		CreatedAt: time.Now(),
	}
	r.cache.Add(newID, sess)
	r.logger.Info("session created", zap.String("session", newID))
	return sess, true
}

// Lookup returns a live session without creating one.
func (r *Registry) Lookup(id string) (*Session, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.cache.Get(id)
	if ok {
		r.cache.Add(id, sess)
	}
	return sess, ok
}

func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close evicts every session and waits for their stores to shut down.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.cache.Values()
	r.cache.Purge()
	r.mu.Unlock()
	for _, sess := range sessions {
		sess.Store.Close()
	}
}

func (r *Registry) onEvict(id string, sess *Session) {
	if sess == nil {
		return
	}
	r.logger.Info("session evicted", zap.String("session", id), zap.Duration("age", time.Since(sess.CreatedAt)))
	go sess.Store.Close()
}
