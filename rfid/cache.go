package rfid

import (
	"sync"
	"time"
)

// CapabilityCache holds the feature set of the connected reader.
type CapabilityCache struct {
	features  *FeatureSet
	fetchedAt time.Time
	mu        sync.RWMutex
}

// NewCapabilityCache creates an empty cache.
func NewCapabilityCache() *CapabilityCache {
	return &CapabilityCache{}
}

// Get returns the cached feature set and whether one is present.
func (c *CapabilityCache) Get() (FeatureSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.features == nil {
		return FeatureSet{}, false
	}
	return *c.features, true
}

// Set replaces the cached feature set wholesale.
func (c *CapabilityCache) Set(features FeatureSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.features = &features
	c.fetchedAt = time.Now()
}

// Clear drops the cached feature set. Called on disconnect.
func (c *CapabilityCache) Clear() {
	c.mu.Lock()
	c.features = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

// FetchedAt returns when the cached feature set was stored, or the zero time.
func (c *CapabilityCache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}
