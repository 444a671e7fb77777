// Package hashring implements a consistent hash ring used to assign
// channels to chat workers. The ring is keyed on a fixed, documented
// 64-bit hash (FNV-1a followed by the murmur3 fmix64 finalizer) so that
// lookups are stable across processes and across restarts of the same
// deployment.
package hashring

import (
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
)

// VirtualNodes is the default number of ring positions inserted per
// worker address. Higher values smooth the key distribution at the cost
// of more positions to sort and search.
const VirtualNodes = 10

// Ring is a consistent hash ring over worker addresses. The zero value is
// not usable; construct with New. Ring is safe for concurrent use.
type Ring struct {
	mu         sync.RWMutex
	virtual    int
	positions  []uint64            // sorted ring positions
	owners     map[uint64]string   // position -> worker addr
	perWorker  map[string][]uint64 // worker addr -> its positions, for removal
}

// New returns an empty ring with the given number of virtual nodes per
// worker. A value <= 0 falls back to VirtualNodes.
func New(virtualNodes int) *Ring {
	if virtualNodes <= 0 {
		virtualNodes = VirtualNodes
	}
	return &Ring{
		virtual:   virtualNodes,
		owners:    make(map[uint64]string),
		perWorker: make(map[string][]uint64),
	}
}

// hashPoint is the fixed, portable 64-bit hash used for every ring
// position and lookup key. This implementation must never change for a
// running deployment, or existing channel assignments would shift.
// Plain FNV-1a maps strings that differ only in their last bytes (such as
// "addr#0".."addr#9") to nearby values, so the sum is passed through the
// fmix64 finalizer to spread such keys across the whole ring.
func hashPoint(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	x := h.Sum64()
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// Add inserts Ring.virtual positions for addr. If addr is already present
// its old positions are removed first, so calling Add twice for the same
// address is a safe re-insertion rather than a duplicate.
func (r *Ring) Add(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(addr)

	positions := make([]uint64, 0, r.virtual)
	for i := 0; i < r.virtual; i++ {
		p := hashPoint(addr + "#" + strconv.Itoa(i))
		// Collision policy: last inserter wins. With a 64-bit hash this
		// is vanishingly unlikely; documented rather than engineered
		// around.
		if _, exists := r.owners[p]; !exists {
			r.positions = append(r.positions, p)
		}
		r.owners[p] = addr
		positions = append(positions, p)
	}
	sort.Slice(r.positions, func(i, j int) bool { return r.positions[i] < r.positions[j] })
	r.perWorker[addr] = positions
}

// Remove deletes all of addr's positions from the ring. Removing an
// address that was never added is a no-op.
func (r *Ring) Remove(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(addr)
}

func (r *Ring) removeLocked(addr string) {
	positions, ok := r.perWorker[addr]
	if !ok {
		return
	}
	for _, p := range positions {
		if r.owners[p] == addr {
			delete(r.owners, p)
		}
	}
	delete(r.perWorker, addr)

	if len(r.owners) == 0 {
		r.positions = nil
		return
	}
	kept := r.positions[:0]
	for _, p := range r.positions {
		if _, stillOwned := r.owners[p]; stillOwned {
			kept = append(kept, p)
		}
	}
	r.positions = kept
}

// Lookup returns the worker address owning key, or ("", false) if the
// ring is empty. Lookup hashes key and walks clockwise to the first ring
// position at or after that hash, wrapping to the smallest position if
// none is found — the standard consistent-hashing lookup rule.
func (r *Ring) Lookup(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.positions) == 0 {
		return "", false
	}

	h := hashPoint(key)
	idx := sort.Search(len(r.positions), func(i int) bool { return r.positions[i] >= h })
	if idx == len(r.positions) {
		idx = 0
	}
	return r.owners[r.positions[idx]], true
}

// Workers returns the distinct worker addresses currently on the ring, in
// no particular order.
func (r *Ring) Workers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.perWorker))
	for addr := range r.perWorker {
		out = append(out, addr)
	}
	return out
}

// Len returns the number of distinct workers on the ring.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.perWorker)
}
