package worker

import (
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/chatmesh/chatmesh/internal/rpc"
)

// Reporter periodically tells the manager what this worker currently
// holds and applies any shutdown command the manager sends back. It
// reconnects with a capped exponential backoff if the stream drops,
// running indefinitely — there is no retry ceiling, since a worker with
// no manager connection is still useful to its already-connected clients
// and should keep trying to rejoin rather than give up.
type Reporter struct {
	worker       *Worker
	managerAddr  string
	reportPeriod time.Duration

	backoffBase time.Duration
	backoffCap  time.Duration
}

// NewReporter builds a Reporter. reportPeriod is how often a
// ReportRequest is sent on an open stream.
func NewReporter(w *Worker, managerAddr string, reportPeriod time.Duration) *Reporter {
	if reportPeriod <= 0 {
		reportPeriod = 5 * time.Second
	}
	return &Reporter{
		worker:       w,
		managerAddr:  managerAddr,
		reportPeriod: reportPeriod,
		backoffBase:  500 * time.Millisecond,
		backoffCap:   30 * time.Second,
	}
}

// Run dials the manager's report endpoint and keeps the stream alive
// until stop is closed, reconnecting on every failure with full-jitter
// exponential backoff.
func (rp *Reporter) Run(stop <-chan struct{}) {
	attempt := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := rp.runOnce(stop); err != nil {
			rp.worker.Log.Warn().Err(err).Msg("report stream ended, reconnecting")
		}

		select {
		case <-stop:
			return
		default:
		}

		delay := rp.backoff(attempt)
		attempt++
		select {
		case <-time.After(delay):
		case <-stop:
			return
		}
	}
}

// backoff computes a full-jitter exponential backoff delay for the
// given attempt number (0-indexed), capped at backoffCap.
func (rp *Reporter) backoff(attempt int) time.Duration {
	max := rp.backoffBase << uint(attempt)
	if max <= 0 || max > rp.backoffCap { // overflow or past the cap
		max = rp.backoffCap
	}
	return time.Duration(rand.Int63n(int64(max) + 1))
}

func (rp *Reporter) runOnce(stop <-chan struct{}) error {
	token, err := rp.worker.Tokens.IssueWorkerToken(rp.worker.AdvertiseAddr)
	if err != nil {
		return err
	}

	u, err := reportURL(rp.managerAddr)
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(u, header)
	if err != nil {
		return err
	}
	stream := rpc.NewStream(conn)
	defer stream.Close()

	done := make(chan struct{})
	var recvErr error
	go func() {
		defer close(done)
		for {
			var resp rpc.ReportResponse
			if err := stream.RecvJSON(&resp); err != nil {
				recvErr = err
				return
			}
			if resp.Shutdown != nil {
				rp.applyShutdown(*resp.Shutdown)
			}
		}
	}()

	ticker := time.NewTicker(rp.reportPeriod)
	defer ticker.Stop()

	if err := stream.SendJSON(rp.buildReport()); err != nil {
		return err
	}

	for {
		select {
		case <-ticker.C:
			if err := stream.SendJSON(rp.buildReport()); err != nil {
				return err
			}
		case <-done:
			return recvErr
		case <-stop:
			return nil
		}
	}
}

func (rp *Reporter) applyShutdown(cmd rpc.ShutdownCommand) {
	core, ok := rp.worker.coreFor(cmd.ChannelID)
	if !ok {
		return
	}
	if cmd.UserID == "" {
		core.fireAll()
		rp.worker.dropCore(cmd.ChannelID)
		return
	}
	core.fireUser(cmd.UserID)
}

func (rp *Reporter) buildReport() rpc.ReportRequest {
	snaps := rp.worker.snapshotCores()
	channels := make([]rpc.ReportedChannel, 0, len(snaps))
	for _, s := range snaps {
		users := make([]rpc.ReportedUser, 0, len(s.Users))
		for _, u := range s.Users {
			users = append(users, rpc.ReportedUser{ID: u})
		}
		channels = append(channels, rpc.ReportedChannel{ID: s.ID, Name: s.Name, Limit: s.Limit, Users: users})
	}
	return rpc.ReportRequest{
		Channels: channels,
		Stats:    sampleStats(),
	}
}

// sampleStats takes a lightweight resource snapshot via gopsutil. Errors
// sampling any one stat are swallowed — a degraded report still carries
// useful channel data and is better sent than withheld.
func sampleStats() rpc.SystemStats {
	stats := rpc.SystemStats{Goroutines: runtime.NumGoroutine()}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := p.MemoryInfo(); err == nil && mem != nil {
			stats.RSSBytes = mem.RSS
		}
	}
	if avg, err := load.Avg(); err == nil {
		stats.Load1 = avg.Load1
	}
	return stats
}

func reportURL(managerAddr string) (string, error) {
	addr := managerAddr
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", err
	}
	if u.Scheme == "http" {
		u.Scheme = "ws"
	} else if u.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = "/v1/report"
	return u.String(), nil
}
