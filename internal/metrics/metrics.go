package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals accepted from the stream"},
		[]string{"symbol", "side"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Trade intents by outcome"},
		[]string{"symbol", "side", "outcome"},
	)
	GatewayFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gateway_failures_total", Help: "Failed exchange request attempts"},
		[]string{"op"},
	)
	DroppedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dropped_messages_total", Help: "Malformed or unrecognized stream messages"},
	)
	Reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stream_reconnects_total", Help: "Stream sessions restarted by the supervisor"},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(SignalsTotal, OrdersTotal, GatewayFailures, DroppedMessages, Reconnects)
}

// Handler routes /metrics to the default registry.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve binds addr and exposes /metrics in the background. Bind errors are
// returned; later serve errors go to logger.
func Serve(addr string, logger *zap.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{Addr: ln.Addr().String(), Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	return srv, nil
}
