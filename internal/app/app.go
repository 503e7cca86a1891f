// Package app carries the bootstrap shared by every pipeline binary: signal
// handling, broker connection with topology declaration, and the small
// health/metrics HTTP server.
package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/xshift007/lab3-distri/internal/messaging/rabbitmq"
	"github.com/xshift007/lab3-distri/internal/metrics"
)

// SignalContext returns a context canceled on SIGINT or SIGTERM.
func SignalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	return ctx, cancel
}

// ConnectBroker dials the broker (retrying until the context is canceled),
// opens a channel, and declares the shared topology on it.
func ConnectBroker(ctx context.Context, url string, log zerolog.Logger) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := rabbitmq.Dial(ctx, url, log)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := rabbitmq.DeclareTopology(ch); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// Health is the process liveness flag shared between the reconnect loop and
// the /health handler goroutines. Atomic because the two sides never
// synchronize otherwise.
type Health struct {
	up atomic.Bool
}

func (h *Health) Set(up bool) { h.up.Store(up) }
func (h *Health) Up() bool    { return h.up.Load() }

// OpsHandler builds the /health + /metrics mux.
func OpsHandler(health *Health) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !health.Up() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// StartOpsServer serves /health and /metrics on addr in the background.
func StartOpsServer(addr string, health *Health, log zerolog.Logger) *http.Server {
	srv := &http.Server{Addr: addr, Handler: OpsHandler(health)}
	go func() {
		log.Info().Str("addr", addr).Msg("ops server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("ops server failed")
		}
	}()
	return srv
}

// Shutdown stops an HTTP server with a bounded grace period.
func Shutdown(srv *http.Server, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error shutting down ops server")
	}
}
