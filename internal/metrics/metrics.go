package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/celopredict/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa los contadores del motor. Un *Metrics nil es válido y no registra nada.
type Metrics struct {
	passes       *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	writes       *prometheus.CounterVec
}

// New crea y registra las métricas en reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "celopredict_aggregation_passes_total",
			Help: "pasadas de agregación por agregador y resultado",
		}, []string{"aggregator", "result"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "celopredict_aggregation_pass_seconds",
			Help:    "duración de cada pasada de agregación",
			Buckets: prometheus.DefBuckets,
		}, []string{"aggregator"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "celopredict_writes_total",
			Help: "escrituras por tipo y estado final",
		}, []string{"kind", "state"}),
	}
	reg.MustRegister(m.passes, m.passDuration, m.writes)
	return m
}

// ObservePass registra una pasada terminada.
func (m *Metrics) ObservePass(aggregator string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.passes.WithLabelValues(aggregator, result).Inc()
	m.passDuration.WithLabelValues(aggregator).Observe(time.Since(start).Seconds())
}

// ObserveWrite registra el estado terminal de una escritura.
func (m *Metrics) ObserveWrite(kind domain.WriteKind, state domain.WriteState) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(string(kind), string(state)).Inc()
}

// HealthFunc reporta si el proceso puede servir datos.
type HealthFunc func(ctx context.Context) error

// Handler expone /metrics y /healthz.
func Handler(gatherer prometheus.Gatherer, healthFn HealthFunc) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := healthFn(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "unhealthy: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve levanta Handler en addr, en una goroutine.
func Serve(addr string, gatherer prometheus.Gatherer, healthFn HealthFunc) *http.Server {
	srv := &http.Server{Addr: addr, Handler: Handler(gatherer, healthFn), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	return srv
}
