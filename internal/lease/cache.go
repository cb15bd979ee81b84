package lease

import (
	"sync"

	"github.com/jlauha/seuranta/internal/model"
)

// Cache holds the latest lease snapshot. The snapshot is a single slice
// reference replaced in one step under the write lock, so readers see either
// the entirely-old or entirely-new set, never a partial one. Callers must
// copy out the scalar values they need; the snapshot may be replaced by the
// poller at any time.
type Cache struct {
	mu     sync.RWMutex
	leases []model.Lease
}

// NewCache returns an empty lease cache.
func NewCache() *Cache {
	return &Cache{}
}

// Replace atomically installs a new snapshot, discarding the old one
// entirely. Passing nil or an empty slice clears the cache.
func (c *Cache) Replace(leases []model.Lease) {
	c.mu.Lock()
	c.leases = leases
	c.mu.Unlock()
}

// LookupByAddress returns the lease whose IP equals addr. On duplicate
// addresses within a snapshot the first match in input order wins.
func (c *Cache) LookupByAddress(addr string) (model.Lease, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, l := range c.leases {
		if l.IP == addr {
			return l, true
		}
	}
	return model.Lease{}, false
}

// HardwareAddresses returns every MAC in the current snapshot.
func (c *Cache) HardwareAddresses() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	macs := make([]string, 0, len(c.leases))
	for _, l := range c.leases {
		macs = append(macs, l.MAC)
	}
	return macs
}

// Snapshot returns a copy of the current lease set.
func (c *Cache) Snapshot() []model.Lease {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Lease, len(c.leases))
	copy(out, c.leases)
	return out
}

// Len returns the number of leases in the current snapshot.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.leases)
}
