// Package manager implements the single coordination process: the
// authoritative user/channel catalog, the consistent-hash-ring-backed
// worker registry, the fixed-window listen limiter, and the worker
// report/shutdown protocol.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatmesh/chatmesh/internal/metrics"
	"github.com/chatmesh/chatmesh/internal/ratelimit"
	"github.com/chatmesh/chatmesh/internal/registry"
	"github.com/chatmesh/chatmesh/internal/store"
	"github.com/chatmesh/chatmesh/internal/token"
)

// dataStore is the subset of *store.Store the manager depends on,
// narrowed to an interface so business logic can be tested against an
// in-memory fake instead of a real PostgreSQL instance.
type dataStore interface {
	CreateUser(ctx context.Context, id, name, passwordHash string) error
	GetUser(ctx context.Context, id string) (*store.User, error)
	CreateChannel(ctx context.Context, name string, limit int, ownerID string) (*store.Channel, error)
	GetChannel(ctx context.Context, id int64) (*store.Channel, error)
	ListChannels(ctx context.Context, id int64) ([]*store.Channel, error)
	DeleteChannel(ctx context.Context, id int64, requesterID string) error
}

// channelSnapshot is the manager's in-memory view of one channel's live
// state, populated only from worker reports — the DB knows a channel's
// configuration, but only a report tells the manager who is actually
// connected right now.
type channelSnapshot struct {
	workerAddr  string
	users       map[string]bool
	lastReport  time.Time
	emptySince  time.Time
}

// Manager wires together the registry, rate limiter, token service, and
// store behind the RPC surface exposed by Handlers.
type Manager struct {
	Registry *registry.Registry
	Listen   *ratelimit.FixedWindow
	Tokens   *token.Service
	Store    dataStore
	Metrics  *metrics.Manager
	Log      zerolog.Logger

	ListenTTL     time.Duration
	EmptyLiveTime time.Duration

	mu    sync.RWMutex
	cache map[int64]*channelSnapshot
}

// New builds a Manager. ListenTTL is set to token.CapabilityTTL (the
// capability token lifetime, ≈5s); emptyLiveTime is how long an empty
// channel is retained before the manager's sweep evicts it.
func New(reg *registry.Registry, listen *ratelimit.FixedWindow, tokens *token.Service, st dataStore, m *metrics.Manager, log zerolog.Logger, emptyLiveTime time.Duration) *Manager {
	return &Manager{
		Registry:      reg,
		Listen:        listen,
		Tokens:        tokens,
		Store:         st,
		Metrics:       m,
		Log:           log,
		ListenTTL:     token.CapabilityTTL,
		EmptyLiveTime: emptyLiveTime,
		cache:         make(map[int64]*channelSnapshot),
	}
}

func (m *Manager) snapshot(id int64) *channelSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.cache[id]
	if !ok {
		s = &channelSnapshot{users: make(map[string]bool)}
		m.cache[id] = s
	}
	return s
}

// connectedUserCount returns how many users a report has told the
// manager are currently on channel id; 0 for a channel with no report
// yet.
func (m *Manager) connectedUserCount(id int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.cache[id]
	if !ok {
		return 0
	}
	return len(s.users)
}

// sweepEmptyChannels is the manager's backstop eviction: any channel
// whose cache has been empty for longer than EmptyLiveTime has its cache
// entry dropped; its registry assignment is left in place (the
// corresponding worker will independently notice via eager-drop per the
// worker's own lifecycle, or be told via a report cycle's shutdown
// command, which handleReport sends for a reported channel that has been
// empty for longer than EmptyLiveTime).
func (m *Manager) sweepEmptyChannels() {
	now := time.Now()

	m.mu.Lock()
	var toEvict []int64
	for id, s := range m.cache {
		if len(s.users) == 0 && !s.emptySince.IsZero() && now.Sub(s.emptySince) > m.EmptyLiveTime {
			toEvict = append(toEvict, id)
		}
	}
	for _, id := range toEvict {
		delete(m.cache, id)
	}
	m.mu.Unlock()

	for _, id := range toEvict {
		m.Log.Info().Int64("channel_id", id).Msg("evicting empty channel past live-time")
	}
}

// RunSweeper runs sweepEmptyChannels on interval until stop is closed.
func (m *Manager) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweepEmptyChannels()
		case <-stop:
			return
		}
	}
}
