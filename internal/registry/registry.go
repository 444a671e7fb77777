// Package registry tracks live chat workers and maintains the
// channel-to-worker assignment derived from the consistent hash ring. It
// is the manager's single source of truth for "who owns this channel".
package registry

import (
	"strconv"
	"sync"

	"github.com/chatmesh/chatmesh/internal/apperr"
	"github.com/chatmesh/chatmesh/internal/hashring"
)

// Registry couples a hash ring with the live channel->worker map derived
// from it. A single RWMutex guards both, matching the "one reader-writer
// lock protects the registry" resource-model requirement; membership
// changes are rare relative to lookups so a plain mutex pair is
// sufficient without needing a lock-striped map here.
type Registry struct {
	mu      sync.RWMutex
	ring    *hashring.Ring
	assign  map[int64]string // channel id -> worker addr ("" means unassigned)
	workers map[string]bool  // live worker addrs, for membership queries
}

// New builds an empty registry using virtualNodes virtual nodes per
// worker on the underlying ring (see hashring.VirtualNodes for the
// default).
func New(virtualNodes int) *Registry {
	return &Registry{
		ring:    hashring.New(virtualNodes),
		assign:  make(map[int64]string),
		workers: make(map[string]bool),
	}
}

// AddWorker registers addr and recomputes the assignment for every known
// channel. This is the O(N_channels) reallocation the design calls out
// explicitly: simplicity and an always-consistent map win over a more
// surgical partial recompute.
func (r *Registry) AddWorker(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ring.Add(addr)
	r.workers[addr] = true
	r.reallocateLocked()
}

// RemoveWorker unregisters addr (e.g. its report stream closed) and
// reallocates every channel.
func (r *Registry) RemoveWorker(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ring.Remove(addr)
	delete(r.workers, addr)
	r.reallocateLocked()
}

// HasWorker reports whether addr currently holds a live report stream.
func (r *Registry) HasWorker(addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workers[addr]
}

// WorkerCount returns the number of live workers.
func (r *Registry) WorkerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// AddChannel registers id with the worker the ring currently assigns it
// to (which may be none, if the ring is empty).
func (r *Registry) AddChannel(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, _ := r.ring.Lookup(strconv.FormatInt(id, 10))
	r.assign[id] = addr
}

// RemoveChannel forgets id's assignment entirely.
func (r *Registry) RemoveChannel(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assign, id)
}

// GetWorker resolves the worker currently responsible for channel id.
func (r *Registry) GetWorker(id int64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addr, ok := r.assign[id]
	if !ok {
		return "", apperr.New(apperr.ChannelNotFound, "channel not registered")
	}
	if addr == "" {
		return "", apperr.New(apperr.WorkerNotAvailable, "no worker assigned to channel")
	}
	return addr, nil
}

// ExpectedWorker is like GetWorker but reports the ring's current answer
// for id without requiring the channel to be pre-registered, used by the
// report handler to detect "this channel belongs on a different worker
// now" after a membership change.
func (r *Registry) ExpectedWorker(id int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ring.Lookup(strconv.FormatInt(id, 10))
}

// reallocateLocked recomputes assign[id] for every channel from the ring.
// Callers must hold mu for writing.
func (r *Registry) reallocateLocked() {
	for id := range r.assign {
		addr, _ := r.ring.Lookup(strconv.FormatInt(id, 10))
		r.assign[id] = addr
	}
}
