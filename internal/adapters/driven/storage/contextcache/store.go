package contextcache

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driven"
	"github.com/custodia-labs/suggest/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.ContextStore = (*Store)(nil)

// DefaultTTL is the idle time after which a context is evicted.
const DefaultTTL = 30 * time.Minute

// separator cannot appear in recommender IDs or user names.
const separator = "\x00"

// Store is a driven.ContextStore with idle expiry.
type Store struct {
	cache *cache.Cache
	ttl   time.Duration
}

// New creates a context store. A ttl of zero or less uses DefaultTTL.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := cache.New(ttl, ttl/2)
	c.OnEvicted(func(key string, _ any) {
		logger.Debugw("recommender context evicted", "key", strings.ReplaceAll(key, separator, "/"))
	})
	return &Store{cache: c, ttl: ttl}
}

func cacheKey(recommenderID, user string) string {
	return recommenderID + separator + user
}

// Get returns the context of a recommender for a user and renews its expiry.
func (s *Store) Get(recommenderID, user string) (*domain.RecommenderContext, bool) {
	key := cacheKey(recommenderID, user)
	x, found := s.cache.Get(key)
	if !found {
		return nil, false
	}
	rctx := x.(*domain.RecommenderContext)
	s.cache.Set(key, rctx, cache.DefaultExpiration)
	return rctx, true
}

// Put stores a context, replacing any previous one.
func (s *Store) Put(rctx *domain.RecommenderContext) {
	if rctx == nil {
		return
	}
	s.cache.Set(cacheKey(rctx.RecommenderID, rctx.User), rctx, cache.DefaultExpiration)
}

// Drop removes the context of a recommender for a user.
func (s *Store) Drop(recommenderID, user string) {
	s.cache.Delete(cacheKey(recommenderID, user))
}

// DropUser removes every context of a user.
func (s *Store) DropUser(user string) {
	suffix := separator + user
	for key := range s.cache.Items() {
		if strings.HasSuffix(key, suffix) {
			s.cache.Delete(key)
		}
	}
}

// Len returns the number of unexpired contexts.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}
