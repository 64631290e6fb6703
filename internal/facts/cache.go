package facts

import (
	"sync"

	"github.com/drover-labs/drover/internal/util"
)

// SetupOKKey is the sentinel fact placed on every host that answered the
// fact-gathering step. Its presence marks the host as contactable; it is
// stripped before facts are handed to tasks as template variables.
const SetupOKKey = "module_setup"

// Cache accumulates per-host facts across plays within a run. All reads
// return deep copies so callers can mutate results freely; writes merge
// rather than replace, with later values winning per key.
type Cache struct {
	mu   sync.RWMutex
	data map[string]map[string]interface{}
}

// New creates an empty fact cache.
func New() *Cache {
	return &Cache{
		data: make(map[string]map[string]interface{}),
	}
}

// Merge folds the given facts into the host's existing entry. Incoming keys
// overwrite existing ones; other keys are preserved.
func (c *Cache) Merge(host string, incoming map[string]interface{}) {
	if len(incoming) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.data[host]
	if !ok {
		existing = make(map[string]interface{}, len(incoming))
		c.data[host] = existing
	}
	for key, value := range incoming {
		existing[key] = util.DeepCopy(value)
	}
}

// Get returns a deep copy of the host's facts. Unknown hosts yield an empty,
// non-nil map.
func (c *Cache) Get(host string) map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return util.DeepCopyStringMap(c.data[host])
}

// Set replaces the host's entry wholesale. Used by tests and by callers that
// need to reset a host between runs.
func (c *Cache) Set(host string, facts map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[host] = util.DeepCopyStringMap(facts)
}

// Has reports whether the host has any cached entry.
func (c *Cache) Has(host string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[host]
	return ok
}

// Hosts returns the hosts with cached entries, in no particular order.
func (c *Cache) Hosts() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hosts := make([]string, 0, len(c.data))
	for host := range c.data {
		hosts = append(hosts, host)
	}
	return hosts
}
