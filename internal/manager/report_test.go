package manager

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatmesh/chatmesh/internal/rpc"
)

func dialReportStream(t *testing.T, srv *httptest.Server, workerToken string) *rpc.Stream {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/report"
	u, err := url.Parse(wsURL)
	if err != nil {
		t.Fatalf("url.Parse() = %v", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+workerToken)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		t.Fatalf("dial report stream: %v", err)
	}
	return rpc.NewStream(conn)
}

func TestReportRegistersWorkerAndUpdatesCache(t *testing.T) {
	m, _ := testManager(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/report", m.HandleReport)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	workerToken, err := m.Tokens.IssueWorkerToken("worker-a:9191")
	if err != nil {
		t.Fatalf("IssueWorkerToken() = %v", err)
	}

	stream := dialReportStream(t, srv, workerToken)
	defer stream.Close()

	// Give HandleReport's goroutine a moment to run AddWorker before we
	// assert on it.
	deadline := time.Now().Add(time.Second)
	for !m.Registry.HasWorker("worker-a:9191") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !m.Registry.HasWorker("worker-a:9191") {
		t.Fatal("worker was not registered after opening the report stream")
	}

	if err := stream.SendJSON(rpc.ReportRequest{
		Channels: []rpc.ReportedChannel{
			{ID: 1, Name: "general", Limit: 10, Users: []rpc.ReportedUser{{ID: "alice"}, {ID: "bob"}}},
		},
	}); err != nil {
		t.Fatalf("SendJSON() = %v", err)
	}

	deadline = time.Now().Add(time.Second)
	for m.connectedUserCount(1) != 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := m.connectedUserCount(1); got != 2 {
		t.Fatalf("connectedUserCount(1) = %d, want 2", got)
	}

	stream.Close()

	deadline = time.Now().Add(time.Second)
	for m.Registry.HasWorker("worker-a:9191") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if m.Registry.HasWorker("worker-a:9191") {
		t.Fatal("worker should be removed once its report stream closes")
	}
}

func TestReportRejectsMissingToken(t *testing.T) {
	m, _ := testManager(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/report", m.HandleReport)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/report")
	if err != nil {
		t.Fatalf("GET /v1/report = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 401 {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestReportDetectsStaleAssignment(t *testing.T) {
	m, _ := testManager(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/report", m.HandleReport)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// Channel 1 is assigned to worker B by the ring, but worker A wrongly
	// reports holding it (e.g. a stale report right after reallocation).
	m.Registry.AddWorker("worker-b:9191")
	m.Registry.AddChannel(1)

	tokenA, err := m.Tokens.IssueWorkerToken("worker-a:9191")
	if err != nil {
		t.Fatalf("IssueWorkerToken() = %v", err)
	}
	stream := dialReportStream(t, srv, tokenA)
	defer stream.Close()

	if err := stream.SendJSON(rpc.ReportRequest{
		Channels: []rpc.ReportedChannel{{ID: 1, Name: "general", Limit: 10}},
	}); err != nil {
		t.Fatalf("SendJSON() = %v", err)
	}

	var resp rpc.ReportResponse
	if err := stream.RecvJSON(&resp); err != nil {
		t.Fatalf("RecvJSON() = %v", err)
	}
	if resp.Shutdown == nil || resp.Shutdown.ChannelID != 1 {
		t.Fatalf("ReportResponse = %+v, want a shutdown for channel 1", resp)
	}
}
