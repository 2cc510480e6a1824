// Package metrics exposes the prometheus counters/gauges SPEC_FULL.md §4.G
// adds around the proxy core: connection counts, active session gauge, and
// relayed byte totals.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Metrics struct {
	ConnectionsTotal    *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge
	RelayBytesTotal     *prometheus.CounterVec
	HandshakeFailures   *prometheus.CounterVec
	registry            *prometheus.Registry
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ConnectionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "socksd_connections_total",
			Help: "Accepted client connections by SOCKS version and command.",
		}, []string{"version", "command"}),
		ActiveSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "socksd_active_sessions",
			Help: "Number of sessions currently registered with the coordinator.",
		}),
		RelayBytesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "socksd_relay_bytes_total",
			Help: "Bytes relayed between clients and targets.",
		}, []string{"direction"}),
		HandshakeFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "socksd_handshake_failures_total",
			Help: "Handshake failures by stage.",
		}, []string{"stage"}),
	}

	return m
}

// SessionCountHook returns a function suitable for
// coordinator.New(..., onSessionCountChanged).
func (m *Metrics) SessionCountHook() func(n int) {
	return func(n int) { m.ActiveSessions.Set(float64(n)) }
}

// Serve starts the /metrics HTTP endpoint and blocks until ctx is
// cancelled or the HTTP server fails. addr empty means metrics are
// disabled: Serve then returns nil at once.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
