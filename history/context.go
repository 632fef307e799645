package history

import "sync"

// Context is the handle through which a scheduler's history store is
// published by the listener and found by readers. One Context exists per
// scheduler. The zero value is ready to use.
type Context struct {
	mu    sync.RWMutex
	store Store
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{}
}

// Store returns the published store, or nil when history is not configured.
func (c *Context) Store() Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// SetStore publishes s. The last call wins.
func (c *Context) SetStore(s Store) {
	c.mu.Lock()
	c.store = s
	c.mu.Unlock()
}

// Enabled reports whether a store has been published.
func (c *Context) Enabled() bool {
	return c.Store() != nil
}
