// Package metrics registers the node's Prometheus collectors and serves
// them over the configured metrics listener. No file in the reference
// corpus wires client_golang directly, so this package follows the
// library's own promauto idiom rather than a teacher exemplar; see
// DESIGN.md.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors bundles the node's counters/gauges/histograms. Each field
// corresponds to one stage named in the concurrency model. They are
// registered and served, but no pipeline component updates them.
type Collectors struct {
	SubmittedTotal   prometheus.Counter
	CheckedTotal     *prometheus.CounterVec
	AttachedTotal    prometheus.Counter
	InvalidTotal     *prometheus.CounterVec
	MempoolGauge     *prometheus.GaugeVec
	AttacherPending  prometheus.Gauge
	CheckDuration    prometheus.Histogram
	ConfirmationLag  prometheus.Histogram
}

// New constructs and registers every collector against reg.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		SubmittedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "yuvd",
			Name:      "submitted_transactions_total",
			Help:      "Token transactions admitted to the mempool.",
		}),
		CheckedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yuvd",
			Name:      "checked_transactions_total",
			Help:      "Isolated-checker verdicts, by outcome.",
		}, []string{"outcome"}),
		AttachedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "yuvd",
			Name:      "attached_transactions_total",
			Help:      "Transactions persisted to the attached-transaction store.",
		}),
		InvalidTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yuvd",
			Name:      "invalid_transactions_total",
			Help:      "Transactions rejected, by check-error reason.",
		}, []string{"reason"}),
		MempoolGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "yuvd",
			Name:      "mempool_entries",
			Help:      "Live mempool entries, by lifecycle status.",
		}, []string{"status"}),
		AttacherPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "yuvd",
			Name:      "attacher_pending_entries",
			Help:      "Transactions parked in the graph attacher's pending set.",
		}),
		CheckDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "yuvd",
			Name:      "check_duration_seconds",
			Help:      "Isolated-checker wall time per transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
		ConfirmationLag: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "yuvd",
			Name:      "confirmation_lag_seconds",
			Help:      "Time between mempool admission and full confirmation.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Server serves the registered collectors at /metrics.
type Server struct {
	addr string
	reg  *prometheus.Registry
}

// NewServer builds a metrics HTTP server bound to addr, sourcing
// collectors from reg (typically prometheus.NewRegistry(), passed to
// New above).
func NewServer(addr string, reg *prometheus.Registry) *Server {
	return &Server{addr: addr, reg: reg}
}

// ListenAndServe blocks until ctx is done or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{Addr: s.addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return httpSrv.Close()
	case err := <-errCh:
		return err
	}
}
