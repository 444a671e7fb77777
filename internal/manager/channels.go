package manager

import (
	"context"

	"github.com/chatmesh/chatmesh/internal/apperr"
	"github.com/chatmesh/chatmesh/internal/store"
)

// ChannelView is what List/Create return to a caller: the durable
// channel row plus the manager's live view of who is connected.
type ChannelView struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Limit   int      `json:"limit"`
	OwnerID string   `json:"owner_id"`
	Users   []string `json:"users"`
}

func (m *Manager) hydrate(c *store.Channel) ChannelView {
	m.mu.RLock()
	var users []string
	if s, ok := m.cache[c.ID]; ok {
		for u := range s.users {
			users = append(users, u)
		}
	}
	m.mu.RUnlock()

	return ChannelView{ID: c.ID, Name: c.Name, Limit: c.Limit, OwnerID: c.OwnerID, Users: users}
}

// List returns every channel, or just id if id != 0.
func (m *Manager) List(ctx context.Context, id int64) ([]ChannelView, error) {
	rows, err := m.Store.ListChannels(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]ChannelView, 0, len(rows))
	for _, c := range rows {
		out = append(out, m.hydrate(c))
	}
	return out, nil
}

// Create validates and persists a new channel, then registers it with
// the worker registry so it immediately has a ring assignment.
func (m *Manager) Create(ctx context.Context, name string, limit int, ownerID string) (ChannelView, error) {
	if name == "" {
		return ChannelView{}, apperr.New(apperr.Validate, "channel name must not be empty")
	}
	if limit <= 0 {
		return ChannelView{}, apperr.New(apperr.Validate, "channel limit must be positive")
	}

	c, err := m.Store.CreateChannel(ctx, name, limit, ownerID)
	if err != nil {
		return ChannelView{}, err
	}
	m.Registry.AddChannel(c.ID)
	if m.Metrics != nil {
		m.Metrics.ChannelsTotal.Inc()
	}
	return m.hydrate(c), nil
}

// Delete removes a channel after checking requesterID owns it.
func (m *Manager) Delete(ctx context.Context, id int64, requesterID string) error {
	if err := m.Store.DeleteChannel(ctx, id, requesterID); err != nil {
		return err
	}
	m.Registry.RemoveChannel(id)

	m.mu.Lock()
	delete(m.cache, id)
	m.mu.Unlock()

	if m.Metrics != nil {
		m.Metrics.ChannelsTotal.Dec()
	}
	return nil
}

// ListenResult is what Listen returns to a client: a capability token
// plus the worker address to dial next.
type ListenResult struct {
	Token      string `json:"token"`
	WorkerAddr string `json:"worker_addr"`
}

// Listen rate-limits per user, resolves the owning worker via the
// registry, and mints a short-lived capability token for the hand-off to
// that worker's Connect.
func (m *Manager) Listen(ctx context.Context, userID string, channelID int64) (ListenResult, error) {
	if !m.Listen.Allow(userID) {
		if m.Metrics != nil {
			m.Metrics.RateLimitedTotal.Inc()
			m.Metrics.ListenRequestsTotal.WithLabelValues("rate_limited").Inc()
		}
		return ListenResult{}, apperr.New(apperr.RateLimited, "listen quota exceeded")
	}

	addr, err := m.Registry.GetWorker(channelID)
	if err != nil {
		if m.Metrics != nil {
			m.Metrics.ListenRequestsTotal.WithLabelValues("error").Inc()
		}
		return ListenResult{}, err
	}

	tok, err := m.Tokens.IssueCapability(userID, channelID, addr)
	if err != nil {
		if m.Metrics != nil {
			m.Metrics.ListenRequestsTotal.WithLabelValues("error").Inc()
		}
		return ListenResult{}, err
	}

	if m.Metrics != nil {
		m.Metrics.ListenRequestsTotal.WithLabelValues("ok").Inc()
	}
	return ListenResult{Token: tok, WorkerAddr: addr}, nil
}
