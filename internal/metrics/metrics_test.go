package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestManagerMetricsRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewManager(reg)

	m.ChannelsTotal.Set(3)
	m.ListenRequestsTotal.WithLabelValues("ok").Inc()
	m.RateLimitedTotal.Inc()

	if got := testutil.ToFloat64(m.ChannelsTotal); got != 3 {
		t.Errorf("ChannelsTotal = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.ListenRequestsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("ListenRequestsTotal{ok} = %v, want 1", got)
	}
}

func TestWorkerMetricsRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := NewWorker(reg)

	w.ActiveConnections.Inc()
	w.BroadcastDroppedTotal.WithLabelValues("buffer_full").Inc()

	if got := testutil.ToFloat64(w.ActiveConnections); got != 1 {
		t.Errorf("ActiveConnections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(w.BroadcastDroppedTotal.WithLabelValues("buffer_full")); got != 1 {
		t.Errorf("BroadcastDroppedTotal{buffer_full} = %v, want 1", got)
	}
}
