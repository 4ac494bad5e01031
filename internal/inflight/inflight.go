// Package inflight provides busy flags that keep an operation from being
// started twice for the same key while the first call is still running.
package inflight

import "sync"

// Guard tracks busy keys. The zero value is ready to use.
type Guard struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// TryAcquire marks key busy. It returns false when key is already busy;
// otherwise the returned release func clears the flag and is safe to call
// more than once.
func (g *Guard) TryAcquire(key string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys == nil {
		g.keys = make(map[string]struct{})
	}
	if _, busy := g.keys[key]; busy {
		return func() {}, false
	}
	g.keys[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.keys, key)
			g.mu.Unlock()
		})
	}, true
}

// Busy reports whether key is currently held.
func (g *Guard) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.keys[key]
	return ok
}
