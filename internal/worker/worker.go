// Package worker implements a chat worker: the per-channel broadcast
// engine terminating client Connect streams, and the reporter that keeps
// the manager informed of what this worker currently holds.
package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatmesh/chatmesh/internal/apperr"
	"github.com/chatmesh/chatmesh/internal/broadcast"
	"github.com/chatmesh/chatmesh/internal/metrics"
	"github.com/chatmesh/chatmesh/internal/ratelimit"
	"github.com/chatmesh/chatmesh/internal/store"
	"github.com/chatmesh/chatmesh/internal/token"
)

// channelStore is the subset of *store.Store a worker needs: looking up
// a channel's durable configuration the first time a Connect arrives for
// it.
type channelStore interface {
	GetChannel(ctx context.Context, id int64) (*store.Channel, error)
}

// ChannelCore is one channel's live state on this worker: its broadcast
// topic and the set of currently-connected users, each with its own
// one-shot shutdown signal.
type ChannelCore struct {
	ID    int64
	Name  string
	Limit int

	topic *broadcast.Topic

	mu        sync.Mutex
	shutdowns map[string]*shutdownSignal // user_id -> shutdown signal
}

// shutdownSignal is a one-shot close, safe to fire concurrently from a
// per-user shutdown and a whole-channel shutdown racing on the same
// user — mirrors broadcast.Subscriber's markLagged.
type shutdownSignal struct {
	ch   chan struct{}
	once sync.Once
}

func newShutdownSignal() *shutdownSignal {
	return &shutdownSignal{ch: make(chan struct{})}
}

func (s *shutdownSignal) fire() { s.once.Do(func() { close(s.ch) }) }

func newChannelCore(c *store.Channel, bufferSize int, onDrop func(string)) *ChannelCore {
	return &ChannelCore{
		ID:        c.ID,
		Name:      c.Name,
		Limit:     c.Limit,
		topic:     broadcast.NewTopic(bufferSize, onDrop),
		shutdowns: make(map[string]*shutdownSignal),
	}
}

// userCount returns how many users are currently registered on this
// core.
func (c *ChannelCore) userCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.shutdowns)
}

// snapshotUsers returns the currently connected user ids, for folding
// into a ReportRequest.
func (c *ChannelCore) snapshotUsers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.shutdowns))
	for id := range c.shutdowns {
		out = append(out, id)
	}
	return out
}

// fireAll closes every registered user's shutdown signal, used when the
// manager orders a whole-channel shutdown.
func (c *ChannelCore) fireAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sig := range c.shutdowns {
		sig.fire()
	}
}

// fireUser closes userID's shutdown signal if present, used when the
// manager orders a single-user shutdown.
func (c *ChannelCore) fireUser(userID string) {
	c.mu.Lock()
	sig, ok := c.shutdowns[userID]
	c.mu.Unlock()
	if ok {
		sig.fire()
	}
}

// registerUser admits userID onto this core, returning its shutdown
// signal. It fails with apperr.InvalidRequest if userID is already
// connected, or if the channel is at its configured Limit — the two
// conditions are reported with distinguishable messages so callers (and
// clients) can tell which one happened.
func (c *ChannelCore) registerUser(userID string) (sig chan struct{}, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.shutdowns[userID]; dup {
		return nil, apperr.New(apperr.InvalidRequest, "user already in channel")
	}
	if c.Limit > 0 && len(c.shutdowns) >= c.Limit {
		return nil, apperr.New(apperr.InvalidRequest, "channel is full")
	}
	s := newShutdownSignal()
	c.shutdowns[userID] = s
	return s.ch, nil
}

// unregisterUser removes userID from this core, if present.
func (c *ChannelCore) unregisterUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.shutdowns, userID)
}

// Worker holds every ChannelCore this process currently serves plus the
// collaborators its HTTP handlers and reporter loop need.
type Worker struct {
	BindAddr      string
	AdvertiseAddr string
	ManagerAddr   string

	Tokens      *token.Service
	Store       channelStore
	ConnLimiter *ratelimit.ConnLimiter
	Metrics     *metrics.Worker
	Log         zerolog.Logger

	BroadcastBuffer int

	mu   sync.Mutex
	core map[int64]*ChannelCore
}

// New builds a Worker. advertiseAddr is the dialable address this
// worker presents in its worker token and capability checks; bindAddr is
// the local listen address (may differ behind NAT/port-mapping).
func New(bindAddr, advertiseAddr, managerAddr string, tokens *token.Service, st channelStore, limiter *ratelimit.ConnLimiter, m *metrics.Worker, log zerolog.Logger, broadcastBuffer int) *Worker {
	if broadcastBuffer <= 0 {
		broadcastBuffer = broadcast.DefaultBuffer
	}
	return &Worker{
		BindAddr:        bindAddr,
		AdvertiseAddr:   advertiseAddr,
		ManagerAddr:     managerAddr,
		Tokens:          tokens,
		Store:           st,
		ConnLimiter:     limiter,
		Metrics:         m,
		Log:             log,
		BroadcastBuffer: broadcastBuffer,
		core:            make(map[int64]*ChannelCore),
	}
}

// getOrLoadCore returns the ChannelCore for id, loading the channel's
// configuration from the store and instantiating one if this is the
// first Connect this worker has seen for id.
func (w *Worker) getOrLoadCore(ctx context.Context, id int64) (*ChannelCore, error) {
	w.mu.Lock()
	if c, ok := w.core[id]; ok {
		w.mu.Unlock()
		return c, nil
	}
	w.mu.Unlock()

	chanRow, err := w.Store.GetChannel(ctx, id)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.core[id]; ok {
		return c, nil
	}
	onDrop := func(string) {}
	if w.Metrics != nil {
		onDrop = func(reason string) { w.Metrics.BroadcastDroppedTotal.WithLabelValues(reason).Inc() }
	}
	c := newChannelCore(chanRow, w.BroadcastBuffer, onDrop)
	w.core[id] = c
	if w.Metrics != nil {
		w.Metrics.ChannelCoresTotal.Set(float64(len(w.core)))
	}
	return c, nil
}

// dropCoreIfEmpty removes id's ChannelCore once its last user has left,
// the eager-eviction policy this implementation chose over waiting for
// the manager's empty-live-time sweep.
func (w *Worker) dropCoreIfEmpty(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.core[id]
	if !ok {
		return
	}
	if c.userCount() == 0 {
		delete(w.core, id)
		if w.Metrics != nil {
			w.Metrics.ChannelCoresTotal.Set(float64(len(w.core)))
		}
	}
}

// dropCore unconditionally removes id's ChannelCore, used when the
// manager orders a whole-channel shutdown.
func (w *Worker) dropCore(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.core, id)
	if w.Metrics != nil {
		w.Metrics.ChannelCoresTotal.Set(float64(len(w.core)))
	}
}

// Subscribe registers a new subscriber on this core's broadcast topic.
func (c *ChannelCore) Subscribe() (*broadcast.Subscriber, func()) {
	return c.topic.Subscribe()
}

// Publish fans msg out to every subscriber of this core's topic.
func (c *ChannelCore) Publish(msg broadcast.Message) {
	c.topic.Publish(msg)
}

// coreFor returns the ChannelCore for id if this worker currently holds
// one, without loading it from the store.
func (w *Worker) coreFor(id int64) (*ChannelCore, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.core[id]
	return c, ok
}

// SubscriberCount reports how many clients are currently subscribed to
// channel id's broadcast topic on this worker, or 0 if this worker
// holds no core for id. Exported for integration tests that need to
// synchronize on subscription landing without a direct handle on the
// unexported ChannelCore type.
func (w *Worker) SubscriberCount(id int64) int {
	c, ok := w.coreFor(id)
	if !ok {
		return 0
	}
	return c.topic.SubscriberCount()
}

// snapshotCores returns a coreSnapshot per currently-held ChannelCore,
// which the reporter turns into ReportedChannel entries for its periodic
// ReportRequest.
func (w *Worker) snapshotCores() []coreSnapshot {
	w.mu.Lock()
	cores := make([]*ChannelCore, 0, len(w.core))
	for _, c := range w.core {
		cores = append(cores, c)
	}
	w.mu.Unlock()

	out := make([]coreSnapshot, 0, len(cores))
	for _, c := range cores {
		out = append(out, coreSnapshot{ID: c.ID, Name: c.Name, Limit: c.Limit, Users: c.snapshotUsers()})
	}
	return out
}

type coreSnapshot struct {
	ID    int64
	Name  string
	Limit int
	Users []string
}
