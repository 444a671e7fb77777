// Command worker runs one chat worker: the per-channel broadcast engine
// serving client Connect streams and the reporter that keeps the
// manager informed of what this worker currently holds.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"

	"github.com/chatmesh/chatmesh/internal/config"
	"github.com/chatmesh/chatmesh/internal/logging"
	"github.com/chatmesh/chatmesh/internal/metrics"
	"github.com/chatmesh/chatmesh/internal/ratelimit"
	"github.com/chatmesh/chatmesh/internal/store"
	"github.com/chatmesh/chatmesh/internal/token"
	"github.com/chatmesh/chatmesh/internal/worker"
)

func main() {
	cfg, err := config.Load("worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New("worker", cfg.Logging)

	tokens, err := token.NewService(cfg.Server.Secret, "chatmesh")
	if err != nil {
		log.Fatal().Err(err).Msg("build token service")
	}

	st, err := store.Open(cfg.DB.DSN(), cfg.DB.MaxConnections)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	w := worker.New(
		cfg.Worker.BindAddr,
		cfg.Worker.AdvertiseAddr,
		cfg.Worker.ManagerAddr,
		tokens,
		st,
		ratelimit.NewConnLimiter(cfg.Worker.ClientRPS, cfg.Worker.ClientBurst),
		metrics.NewWorker(reg),
		log,
		cfg.Worker.BroadcastBuffer,
	)

	mux := http.NewServeMux()
	w.Routes(mux, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    cfg.Worker.BindAddr,
		Handler: mux,
	}

	stop := make(chan struct{})
	reporter := worker.NewReporter(w, cfg.Worker.ManagerAddr, cfg.Server.ReportDuration)
	go reporter.Run(stop)

	go func() {
		log.Info().Str("addr", srv.Addr).Str("advertise_addr", cfg.Worker.AdvertiseAddr).Msg("worker listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen and serve")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	close(stop)

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
