package manager

import (
	"net/http"
	"time"

	"github.com/chatmesh/chatmesh/internal/rpc"
)

// HandleReport upgrades the incoming request to a Stream and runs the
// manager side of one worker's Report session until the connection
// closes. Authentication uses a worker token (not a user token); the
// manager trusts WorkerAddr from the token's claims, never the transport
// peer address, per the worker-identity invariant.
func (m *Manager) HandleReport(w http.ResponseWriter, r *http.Request) {
	raw, err := rpc.BearerToken(r)
	if err != nil {
		rpc.WriteError(w, err)
		return
	}
	claims, err := m.Tokens.VerifyWorkerToken(raw)
	if err != nil {
		rpc.WriteError(w, err)
		return
	}

	conn, err := rpc.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.Log.Warn().Err(err).Msg("report: websocket upgrade failed")
		return
	}
	stream := rpc.NewStream(conn)
	defer stream.Close()

	addr := claims.WorkerAddr
	started := time.Now()

	m.Registry.AddWorker(addr)
	if m.Metrics != nil {
		m.Metrics.WorkersTotal.Inc()
	}
	m.Log.Info().Str("worker_addr", addr).Msg("worker report stream opened")

	defer func() {
		m.Registry.RemoveWorker(addr)
		if m.Metrics != nil {
			m.Metrics.WorkersTotal.Dec()
			m.Metrics.ReportStreamDuration.Observe(time.Since(started).Seconds())
		}
		m.Log.Info().Str("worker_addr", addr).Msg("worker report stream closed")
	}()

	for {
		var req rpc.ReportRequest
		if err := stream.RecvJSON(&req); err != nil {
			return
		}
		m.handleReport(addr, req, stream)
	}
}

// handleReport folds one ReportRequest into the manager's channel-info
// cache and, for any channel whose ring assignment no longer matches the
// reporting worker, or which has been reported empty for longer than
// EmptyLiveTime, tells that worker to shut it down. A single bad
// report does not end the stream — only the stream closing changes
// registry membership, per the recovery policy.
func (m *Manager) handleReport(workerAddr string, req rpc.ReportRequest, stream *rpc.Stream) {
	now := time.Now()

	for _, rc := range req.Channels {
		expected, ok := m.Registry.ExpectedWorker(rc.ID)
		if ok && expected != workerAddr {
			_ = stream.SendJSON(rpc.ReportResponse{
				Shutdown: &rpc.ShutdownCommand{ChannelID: rc.ID},
			})
			m.mu.Lock()
			delete(m.cache, rc.ID)
			m.mu.Unlock()
			continue
		}

		snap := m.snapshot(rc.ID)
		m.mu.Lock()
		snap.workerAddr = workerAddr
		snap.lastReport = now
		snap.users = make(map[string]bool, len(rc.Users))
		for _, u := range rc.Users {
			snap.users[u.ID] = true
		}
		if len(snap.users) == 0 {
			if snap.emptySince.IsZero() {
				snap.emptySince = now
			}
		} else {
			snap.emptySince = time.Time{}
		}
		expired := len(snap.users) == 0 && now.Sub(snap.emptySince) > m.EmptyLiveTime
		m.mu.Unlock()

		if expired {
			_ = stream.SendJSON(rpc.ReportResponse{
				Shutdown: &rpc.ShutdownCommand{ChannelID: rc.ID},
			})
		}
	}
}
