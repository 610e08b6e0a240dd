// Package metrics exposes campaign counters in the Prometheus format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the campaign collectors on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	Sends      *prometheus.CounterVec
	Skips      *prometheus.CounterVec
	SentToday  prometheus.Gauge
	SendTiming prometheus.Histogram
}

// New registers the campaign collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outreach_sends_total",
			Help: "Send attempts by result (sent, error, exception)",
		}, []string{"result"}),
		Skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outreach_skips_total",
			Help: "Recipients not contacted, by reason",
		}, []string{"reason"}),
		SentToday: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outreach_attempts_today",
			Help: "Send attempts recorded for the current day",
		}),
		SendTiming: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outreach_send_duration_seconds",
			Help:    "Time spent in the mail transport per attempt",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.Registry.MustRegister(
		m.Sends,
		m.Skips,
		m.SentToday,
		m.SendTiming,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveSend records one attempt with its log status.
func (m *Metrics) ObserveSend(status string, took time.Duration) {
	m.Sends.WithLabelValues(Result(status)).Inc()
	m.SendTiming.Observe(took.Seconds())
}

// ObserveSkip records a recipient that was not contacted.
func (m *Metrics) ObserveSkip(reason string) {
	m.Skips.WithLabelValues(reason).Inc()
}

// Result reduces a log status to its low-cardinality prefix.
func Result(status string) string {
	prefix, _, _ := strings.Cut(status, ":")
	return prefix
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
