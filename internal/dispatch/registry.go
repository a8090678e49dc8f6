// Package dispatch classifies canonical records and fans them out to
// registered listeners.
package dispatch

import (
	"sync"

	"slackwire/internal/event"
)

// Wildcard is the reserved key whose listeners receive every digested
// record unconditionally.
const Wildcard = "*"

// Handler receives the full canonical record for every key it matched.
//
// Handlers run synchronously under the dispatcher's fan-out lock, so
// one record's listeners never interleave with another's. A handler
// must therefore not call Digest or DigestRecord on the same dispatcher
// from inside the callback — that deadlocks. Re-digest (or send) from a
// goroutine instead.
type Handler func(rec event.Record)

// Registry maps classification keys to ordered listener lists. One Add
// call may bind a single handler under several keys atomically.
//
// Registration order is preserved per key. There is no de-registration;
// a Registry lives as long as its adapter instance.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string][]Handler{}}
}

// Add binds h under every key in keys. Nil handlers and empty keys are
// ignored.
func (r *Registry) Add(h Handler, keys ...string) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		if k == "" {
			continue
		}
		r.handlers[k] = append(r.handlers[k], h)
	}
}

// handlersFor returns a snapshot of the listeners for key, in
// registration order. The snapshot keeps fan-out safe against concurrent
// Add calls.
func (r *Registry) handlersFor(key string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hs := r.handlers[key]
	if len(hs) == 0 {
		return nil
	}
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out
}

// Len reports how many listeners are bound under key.
func (r *Registry) Len(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[key])
}
