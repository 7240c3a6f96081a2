package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the pipeline's collectors. All methods are safe on a nil
// *Registry so services can run without metrics.
type Registry struct {
	reg             *prometheus.Registry
	OrdersProcessed *prometheus.CounterVec
	Completions     prometheus.Counter
	RosterRows      prometheus.Counter
	Rechecks        *prometheus.CounterVec
	JobDurationSec  *prometheus.HistogramVec
	Orphans         prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_orders_processed_total",
		Help: "Orders seen by the processor, by outcome.",
	}, []string{"outcome"})
	completions := prometheus.NewCounter(prometheus.CounterOpts{Name: "roster_order_completions_total"})
	rows := prometheus.NewCounter(prometheus.CounterOpts{Name: "roster_rows_written_total"})
	rechecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_completion_rechecks_total",
	}, []string{"result"})
	jobs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roster_job_duration_seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"job"})
	orphans := prometheus.NewCounter(prometheus.CounterOpts{Name: "roster_orphans_found_total"})

	r.MustRegister(processed, completions, rows, rechecks, jobs, orphans)

	return &Registry{
		reg:             r,
		OrdersProcessed: processed,
		Completions:     completions,
		RosterRows:      rows,
		Rechecks:        rechecks,
		JobDurationSec:  jobs,
		Orphans:         orphans,
	}
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) OrderProcessed(outcome string) {
	if r == nil {
		return
	}
	r.OrdersProcessed.WithLabelValues(outcome).Inc()
}

func (r *Registry) Completed() {
	if r == nil {
		return
	}
	r.Completions.Inc()
}

func (r *Registry) RowsWritten(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.RosterRows.Add(float64(n))
}

func (r *Registry) Recheck(result string) {
	if r == nil {
		return
	}
	r.Rechecks.WithLabelValues(result).Inc()
}

func (r *Registry) ObserveJob(job string, started time.Time) {
	if r == nil {
		return
	}
	r.JobDurationSec.WithLabelValues(job).Observe(time.Since(started).Seconds())
}

func (r *Registry) OrphansFound(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.Orphans.Add(float64(n))
}
