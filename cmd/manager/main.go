// Command manager runs the chatmesh coordination process: the
// authoritative user/channel catalog, the worker registry, and the
// worker report/shutdown protocol.
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
	"github.com/chatmesh/chatmesh/internal/manager"
	"github.com/chatmesh/chatmesh/internal/metrics"
	"github.com/chatmesh/chatmesh/internal/ratelimit"
	"github.com/chatmesh/chatmesh/internal/registry"
	"github.com/chatmesh/chatmesh/internal/store"
	"github.com/chatmesh/chatmesh/internal/token"
)

func main() {
	cfg, err := config.Load("manager")
	if err != nil {
		fmt.Fprintf(os.Stderr, "manager: load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New("manager", cfg.Logging)

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
	m := manager.New(
		registry.New(cfg.Server.VirtualNodes),
		ratelimit.NewFixedWindow(cfg.Server.ListenBurst, cfg.Server.ListenInterval),
		tokens,
		st,
		metrics.NewManager(reg),
		log,
		cfg.Server.EmptyLiveTime,
	)

	mux := http.NewServeMux()
	m.Routes(mux, cfg.DB.Pepper)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: mux,
	}

	stop := make(chan struct{})
	go m.RunSweeper(cfg.Server.EmptyLiveTime/2, stop)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("manager listening")
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
