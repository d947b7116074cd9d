package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ccops/five9cm/internal/ids"
	"github.com/charmbracelet/log"
	"github.com/jellydator/ttlcache/v3"
)

const DefaultTTL = time.Hour

// Store keeps sessions alive for a sliding TTL. Expired sessions lose their
// credentials.
type Store struct {
	cache  *ttlcache.Cache[string, *Session]
	opts   Options
	logger *log.Logger

	closeOnce sync.Once
}

func NewStore(ttl time.Duration, opts Options, logger *log.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *Session](ttl),
	)
	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Session]) {
		item.Value().Credentials.Clear()
		if reason == ttlcache.EvictionReasonExpired {
			logger.Debug("session expired", "session_id", item.Key())
		}
	})
	go cache.Start()

	return &Store{cache: cache, opts: opts, logger: logger}
}

// Get returns a live session and extends its TTL.
func (s *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	item := s.cache.Get(id)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (s *Store) Create() *Session {
	sess := New(ids.NewSessionID(), s.opts)
	s.cache.Set(sess.ID, sess, ttlcache.DefaultTTL)
	s.logger.Debug("session created", "session_id", sess.ID)
	return sess
}

// GetOrCreate returns the session for id, or a fresh one when id is unknown
// or expired. created reports which happened.
func (s *Store) GetOrCreate(id string) (sess *Session, created bool) {
	if existing, ok := s.Get(id); ok {
		return existing, false
	}
	return s.Create(), true
}

// Ephemeral returns a session that is never stored, for stateless API and
// CLI calls.
func (s *Store) Ephemeral() *Session {
	return New(ids.NewSessionID(), s.opts)
}

func (s *Store) Delete(id string) {
	s.cache.Delete(id)
}

func (s *Store) Len() int {
	return s.cache.Len()
}

// Close stops the expiry loop.
func (s *Store) Close() {
	s.closeOnce.Do(s.cache.Stop)
}
