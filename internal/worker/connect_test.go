package worker

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatmesh/chatmesh/internal/rpc"
	"github.com/chatmesh/chatmesh/internal/store"
)

func dialConnect(t *testing.T, srv *httptest.Server, capability string) *rpc.Stream {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/connect"
	u, err := url.Parse(wsURL)
	if err != nil {
		t.Fatalf("url.Parse() = %v", err)
	}
	q := u.Query()
	q.Set("token", capability)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			t.Fatalf("dial connect stream: %v (status %d)", err, resp.StatusCode)
		}
		t.Fatalf("dial connect stream: %v", err)
	}
	return rpc.NewStream(conn)
}

func newConnectServer(t *testing.T, w *Worker) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/connect", w.HandleConnect)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestConnectEndToEndChatDelivery(t *testing.T) {
	w := testWorker(t, &store.Channel{ID: 1, Name: "general", Limit: 5})
	srv := newConnectServer(t, w)

	aliceCap, err := w.Tokens.IssueCapability("alice", 1, w.AdvertiseAddr)
	if err != nil {
		t.Fatalf("IssueCapability(alice) = %v", err)
	}
	bobCap, err := w.Tokens.IssueCapability("bob", 1, w.AdvertiseAddr)
	if err != nil {
		t.Fatalf("IssueCapability(bob) = %v", err)
	}

	alice := dialConnect(t, srv, aliceCap)
	defer alice.Close()
	bob := dialConnect(t, srv, bobCap)
	defer bob.Close()

	// Give both subscriptions time to land before publishing, since
	// Subscribe runs only after the upgrade response has returned to the
	// dialer.
	deadline := time.Now().Add(time.Second)
	for {
		if core, ok := w.coreFor(1); ok && core.topic.SubscriberCount() == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("both subscribers never registered on the channel's topic")
		}
		time.Sleep(time.Millisecond)
	}

	if err := alice.SendJSON(rpc.WireMessage{Text: "hi bob"}); err != nil {
		t.Fatalf("alice.SendJSON() = %v", err)
	}

	var gotAtBob, gotAtAlice rpc.WireMessage
	if err := bob.RecvJSON(&gotAtBob); err != nil {
		t.Fatalf("bob.RecvJSON() = %v", err)
	}
	if gotAtBob.UserID != "alice" || gotAtBob.Text != "hi bob" {
		t.Fatalf("bob received %+v, want alice's message", gotAtBob)
	}

	// The publisher also receives its own message back out, since the
	// worker fans out to every subscriber of the topic including the
	// sender.
	if err := alice.RecvJSON(&gotAtAlice); err != nil {
		t.Fatalf("alice.RecvJSON() = %v", err)
	}
	if gotAtAlice.UserID != "alice" {
		t.Fatalf("alice received %+v, want her own echoed message", gotAtAlice)
	}
}

func TestConnectRejectsWrongWorkerAddr(t *testing.T) {
	w := testWorker(t, &store.Channel{ID: 1, Name: "general", Limit: 5})
	srv := newConnectServer(t, w)

	capToken, err := w.Tokens.IssueCapability("alice", 1, "some-other-worker:9191")
	if err != nil {
		t.Fatalf("IssueCapability() = %v", err)
	}

	_, resp, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/connect?token="+capToken, nil)
	if err == nil {
		t.Fatal("expected the dial to fail with a non-101 response")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		status := -1
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("status = %d, want 403", status)
	}
}

func TestConnectRejectsFullChannel(t *testing.T) {
	w := testWorker(t, &store.Channel{ID: 1, Name: "general", Limit: 1})
	srv := newConnectServer(t, w)

	aliceCap, _ := w.Tokens.IssueCapability("alice", 1, w.AdvertiseAddr)
	bobCap, _ := w.Tokens.IssueCapability("bob", 1, w.AdvertiseAddr)

	alice := dialConnect(t, srv, aliceCap)
	defer alice.Close()

	deadline := time.Now().Add(time.Second)
	for {
		if core, ok := w.coreFor(1); ok && core.userCount() == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("alice's registration never landed")
		}
		time.Sleep(time.Millisecond)
	}

	_, resp, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/connect?token="+bobCap, nil)
	if err == nil {
		t.Fatal("expected bob's dial to fail, the channel is full")
	}
	if resp == nil || resp.StatusCode != http.StatusPreconditionFailed {
		status := -1
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("status = %d, want 412", status)
	}
}

func TestConnectDropsCoreAfterLastUserLeaves(t *testing.T) {
	w := testWorker(t, &store.Channel{ID: 1, Name: "general", Limit: 5})
	srv := newConnectServer(t, w)

	aliceCap, _ := w.Tokens.IssueCapability("alice", 1, w.AdvertiseAddr)
	alice := dialConnect(t, srv, aliceCap)

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := w.coreFor(1); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("core was never created")
		}
		time.Sleep(time.Millisecond)
	}

	alice.Close()

	deadline = time.Now().Add(time.Second)
	for {
		if _, ok := w.coreFor(1); !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("core was not dropped after its last user disconnected")
		}
		time.Sleep(time.Millisecond)
	}
}
