// Package sessions maps downstream session identifiers to their transports.
package sessions

import (
	"context"
	"sync"
)

// Sender delivers a payload to one downstream session.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// Registry is a concurrency-safe session-id to Sender mapping. The gateway
// resolves subscriber session ids through it at fan-out time, so unbinding a
// session immediately stops delivery.
type Registry struct {
	mu      sync.RWMutex
	senders map[string]Sender
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

// Bind associates a session id with a sender, replacing any prior binding.
func (r *Registry) Bind(sessionID string, sender Sender) {
	if sessionID == "" || sender == nil {
		return
	}
	r.mu.Lock()
	r.senders[sessionID] = sender
	r.mu.Unlock()
}

// Unbind removes the session binding if present.
func (r *Registry) Unbind(sessionID string) {
	r.mu.Lock()
	delete(r.senders, sessionID)
	r.mu.Unlock()
}

// Lookup resolves a session id to its sender.
func (r *Registry) Lookup(sessionID string) (Sender, bool) {
	r.mu.RLock()
	sender, ok := r.senders[sessionID]
	r.mu.RUnlock()
	return sender, ok
}

// Len reports the number of bound sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.senders)
}
