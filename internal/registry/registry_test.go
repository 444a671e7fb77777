package registry

import (
	"testing"

	"github.com/chatmesh/chatmesh/internal/apperr"
)

func TestGetWorkerChannelNotFound(t *testing.T) {
	r := New(10)
	if _, err := r.GetWorker(1); err == nil {
		t.Fatal("expected an error for an unregistered channel")
	} else if ae, ok := apperr.Of(err); !ok || ae.Kind != apperr.ChannelNotFound {
		t.Fatalf("got %v, want ChannelNotFound", err)
	}
}

func TestGetWorkerNoWorkerAvailable(t *testing.T) {
	r := New(10)
	r.AddChannel(1)
	if _, err := r.GetWorker(1); err == nil {
		t.Fatal("expected an error when no worker is registered")
	} else if ae, ok := apperr.Of(err); !ok || ae.Kind != apperr.WorkerNotAvailable {
		t.Fatalf("got %v, want WorkerNotAvailable", err)
	}
}

func TestAddWorkerAssignsExistingChannels(t *testing.T) {
	r := New(10)
	r.AddChannel(1)
	r.AddChannel(2)
	r.AddWorker("worker-a:9191")

	for _, id := range []int64{1, 2} {
		addr, err := r.GetWorker(id)
		if err != nil {
			t.Fatalf("GetWorker(%d) = %v", id, err)
		}
		if addr != "worker-a:9191" {
			t.Fatalf("GetWorker(%d) = %q, want worker-a:9191", id, addr)
		}
	}
}

func TestRemoveWorkerReallocates(t *testing.T) {
	r := New(10)
	r.AddWorker("worker-a:9191")
	r.AddWorker("worker-b:9191")
	r.AddChannel(1)

	addrBefore, err := r.GetWorker(1)
	if err != nil {
		t.Fatalf("GetWorker(1) = %v", err)
	}

	r.RemoveWorker(addrBefore)

	addrAfter, err := r.GetWorker(1)
	if err != nil {
		t.Fatalf("GetWorker(1) after removal = %v", err)
	}
	if addrAfter == addrBefore {
		t.Fatalf("channel still assigned to the removed worker %q", addrBefore)
	}
}

func TestRemoveLastWorkerMakesChannelUnavailable(t *testing.T) {
	r := New(10)
	r.AddWorker("solo:9191")
	r.AddChannel(1)
	r.RemoveWorker("solo:9191")

	if _, err := r.GetWorker(1); err == nil {
		t.Fatal("expected WorkerNotAvailable once the only worker leaves")
	} else if ae, ok := apperr.Of(err); !ok || ae.Kind != apperr.WorkerNotAvailable {
		t.Fatalf("got %v, want WorkerNotAvailable", err)
	}
}

func TestRemoveChannelForgetsAssignment(t *testing.T) {
	r := New(10)
	r.AddWorker("worker-a:9191")
	r.AddChannel(5)
	r.RemoveChannel(5)

	if _, err := r.GetWorker(5); err == nil {
		t.Fatal("expected ChannelNotFound after RemoveChannel")
	}
}

func TestExpectedWorkerMatchesRingDirectly(t *testing.T) {
	r := New(10)
	r.AddWorker("worker-a:9191")
	r.AddChannel(9)

	got, err := r.GetWorker(9)
	if err != nil {
		t.Fatalf("GetWorker(9) = %v", err)
	}
	expected, ok := r.ExpectedWorker(9)
	if !ok || expected != got {
		t.Fatalf("ExpectedWorker(9) = %q, %v, want %q, true", expected, ok, got)
	}
}
