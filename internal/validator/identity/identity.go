// Package identity holds the validator id assigned by the hub.
//
// The connection manager owns the Handle and writes it once per signup; probe
// handlers read it when they build a result. A handler that started before a
// signup completes may read the previous (or empty) id. The hub tolerates or
// rejects such results; the handle only guarantees that reads never tear.
//
// Before the first signup ack Get returns "", and results built then carry
// "validatorId": "" on the wire rather than null or an omitted field.
package identity

import "sync"

// Handle is a synchronized validator identity with a session counter.
type Handle struct {
	mu         sync.RWMutex
	id         string
	generation uint64
}

// New returns an empty handle.
func New() *Handle {
	return &Handle{}
}

// BeginSession advances the session counter. The id is kept: the hub may
// assign the same or a new one when the next signup completes.
func (h *Handle) BeginSession() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.generation++
	return h.generation
}

// Set records the id assigned during session gen. It reports false and leaves
// the handle unchanged when gen is no longer the current session.
func (h *Handle) Set(gen uint64, id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.generation {
		return false
	}
	h.id = id
	return true
}

// Get returns the current id, or "" before the first signup.
func (h *Handle) Get() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.id
}

// Snapshot returns the id together with the session it belongs to.
func (h *Handle) Snapshot() (string, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.id, h.generation
}
