package worker

import (
	"net/http"
)

// Routes registers this worker's HTTP surface: the client-facing Connect
// stream plus operational endpoints. metricsHandler is typically
// promhttp.HandlerFor bound to the registry w.Metrics was built on; nil
// skips exposing /metrics.
func (w *Worker) Routes(mux *http.ServeMux, metricsHandler http.Handler) {
	mux.HandleFunc("/v1/connect", w.HandleConnect)
	mux.HandleFunc("/healthz", w.handleHealth)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
}

func (w *Worker) handleHealth(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("ok"))
}
