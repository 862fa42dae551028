package services

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/logger"
)

// GenerationHandle reserves the incoming slot of a cache key.
// It is returned by BeginGeneration and consumed by CommitGeneration or Abort.
type GenerationHandle struct {
	Key        domain.PredictionKey
	Generation uint64
}

// cacheEntry is the double buffer of one key.
type cacheEntry struct {
	active       atomic.Pointer[domain.Predictions]
	incoming     *GenerationHandle
	acknowledged uint64
}

// PredictionCache holds the active and incoming generation per
// (session owner, data owner, project). Readers never block on writers:
// the active generation is published through an atomic pointer and is
// immutable apart from its lifecycle overlay.
type PredictionCache struct {
	mu      sync.RWMutex
	entries map[domain.PredictionKey]*cacheEntry

	// generations is shared by all keys so a generation number is never
	// reused, even after a key was invalidated.
	generations atomic.Uint64
}

// NewPredictionCache creates an empty cache.
func NewPredictionCache() *PredictionCache {
	return &PredictionCache{
		entries: make(map[domain.PredictionKey]*cacheEntry),
	}
}

// GetActive returns the active generation of a key, or an empty generation 0.
func (c *PredictionCache) GetActive(key domain.PredictionKey) *domain.Predictions {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		if p := entry.active.Load(); p != nil {
			return p
		}
	}
	return domain.EmptyPredictions(key)
}

// BeginGeneration reserves the incoming slot for a key. Only one generation
// may be in flight per key; a second call fails with ErrGenerationInProgress.
func (c *PredictionCache) BeginGeneration(key domain.PredictionKey) (*GenerationHandle, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entryLocked(key)
	if entry.incoming != nil {
		return nil, fmt.Errorf("%w: %s generation %d", domain.ErrGenerationInProgress, key, entry.incoming.Generation)
	}

	handle := &GenerationHandle{Key: key, Generation: c.generations.Add(1)}
	entry.incoming = handle
	return handle, nil
}

// InFlight reports whether a generation is being computed for a key.
func (c *PredictionCache) InFlight(key domain.PredictionKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return ok && entry.incoming != nil
}

// CommitGeneration atomically replaces the active generation with preds.
//
// The commit is applied only if handle still owns the key's incoming slot and
// its generation is newer than the active one; otherwise nothing changes and
// ErrStaleGeneration is returned. The incoming slot is released either way.
func (c *PredictionCache) CommitGeneration(handle *GenerationHandle, preds *domain.Predictions) error {
	if handle == nil || preds == nil {
		return fmt.Errorf("%w: commit requires a handle and predictions", domain.ErrInvalidInput)
	}
	if preds.Generation != handle.Generation || preds.Key != handle.Key {
		return fmt.Errorf("%w: predictions do not belong to generation %d of %s",
			domain.ErrInvalidInput, handle.Generation, handle.Key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[handle.Key]
	if !ok || entry.incoming != handle {
		logger.Debug("Discarding generation %d for %s: slot no longer reserved", handle.Generation, handle.Key)
		return domain.ErrStaleGeneration
	}
	entry.incoming = nil

	if current := entry.active.Load(); current != nil && current.Generation >= handle.Generation {
		logger.Debug("Discarding generation %d for %s: generation %d is active",
			handle.Generation, handle.Key, current.Generation)
		return domain.ErrStaleGeneration
	}

	entry.active.Store(preds)
	logger.Debug("Activated generation %d for %s (%d suggestions)", preds.Generation, handle.Key, preds.Size())
	return nil
}

// Abort releases the incoming slot without publishing anything.
func (c *PredictionCache) Abort(handle *GenerationHandle) {
	if handle == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[handle.Key]; ok && entry.incoming == handle {
		entry.incoming = nil
	}
}

// SwitchPredictions reports whether the active generation is newer than the
// one acknowledged by the previous call for this key, and acknowledges it.
func (c *PredictionCache) SwitchPredictions(key domain.PredictionKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	active := entry.active.Load()
	if active == nil || active.Generation <= entry.acknowledged {
		return false
	}
	entry.acknowledged = active.Generation
	return true
}

// Invalidate drops the active and incoming generations of a key.
// An outstanding handle becomes stale and its commit will be discarded.
func (c *PredictionCache) Invalidate(key domain.PredictionKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateProject drops all keys of a project, e.g. after a schema change.
func (c *PredictionCache) InvalidateProject(projectID string) []domain.PredictionKey {
	return c.invalidateWhere(func(k domain.PredictionKey) bool { return k.ProjectID == projectID })
}

// InvalidateSession drops all keys of a session owner.
func (c *PredictionCache) InvalidateSession(sessionOwner string) []domain.PredictionKey {
	return c.invalidateWhere(func(k domain.PredictionKey) bool { return k.SessionOwner == sessionOwner })
}

// Keys returns all keys with cached state.
func (c *PredictionCache) Keys() []domain.PredictionKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]domain.PredictionKey, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

func (c *PredictionCache) invalidateWhere(match func(domain.PredictionKey) bool) []domain.PredictionKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	var dropped []domain.PredictionKey
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
			dropped = append(dropped, k)
		}
	}
	return dropped
}

// entryLocked returns the entry for a key, creating it (caller must hold lock).
func (c *PredictionCache) entryLocked(key domain.PredictionKey) *cacheEntry {
	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{}
		c.entries[key] = entry
	}
	return entry
}
