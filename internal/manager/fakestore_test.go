package manager

import (
	"context"
	"sync"
	"time"

	"github.com/chatmesh/chatmesh/internal/apperr"
	"github.com/chatmesh/chatmesh/internal/store"
)

// fakeStore is an in-memory dataStore used by this package's tests so
// they exercise business logic (validation, ownership checks, rate
// limiting, registry wiring) without requiring a live PostgreSQL
// instance, which this repository has no grounded way to fake honestly
// (no sqlmock-style library appears anywhere in the reference corpus).
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*store.User
	channels map[int64]*store.Channel
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*store.User),
		channels: make(map[int64]*store.Channel),
	}
}

func (f *fakeStore) CreateUser(ctx context.Context, id, name, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[id]; exists {
		return apperr.New(apperr.Validate, "user_id already registered")
	}
	f.users[id] = &store.User{ID: id, Name: name, PasswordHash: passwordHash}
	return nil
}

func (f *fakeStore) GetUser(ctx context.Context, id string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.New(apperr.UserNotFound, "no such user")
	}
	return u, nil
}

func (f *fakeStore) CreateChannel(ctx context.Context, name string, limit int, ownerID string) (*store.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := &store.Channel{ID: f.nextID, Name: name, Limit: limit, OwnerID: ownerID}
	f.channels[c.ID] = c
	return c, nil
}

func (f *fakeStore) GetChannel(ctx context.Context, id int64) (*store.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.channels[id]
	if !ok {
		return nil, apperr.New(apperr.ChannelNotFound, "no such channel")
	}
	return c, nil
}

func (f *fakeStore) ListChannels(ctx context.Context, id int64) ([]*store.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != 0 {
		c, ok := f.channels[id]
		if !ok {
			return []*store.Channel{}, nil
		}
		return []*store.Channel{c}, nil
	}
	var out []*store.Channel
	for _, c := range f.channels {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) DeleteChannel(ctx context.Context, id int64, requesterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.channels[id]
	if !ok {
		return apperr.New(apperr.ChannelNotFound, "no such channel")
	}
	if c.OwnerID != requesterID {
		return apperr.New(apperr.PermissionDenied, "not the owner")
	}
	delete(f.channels, id)
	return nil
}
