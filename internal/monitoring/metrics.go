// internal/monitoring/metrics.go
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valpere/AdScrapexter/pkg/types"
)

// Item outcomes
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
	OutcomeNotFound = "not_found"
	OutcomeBlocked  = "blocked"
)

// Metrics holds the session's Prometheus collectors on a private
// registry. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	itemsProcessed *prometheus.CounterVec
	fieldsFound    *prometheus.CounterVec
	attempts       prometheus.Counter
	itemDuration   prometheus.Histogram
	batches        prometheus.Counter
	blocks         prometheus.Counter
	storeWrites    *prometheus.CounterVec
	continuations  *prometheus.CounterVec
}

// NewMetrics registers every collector under namespace
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "adscrapexter"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		itemsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_processed_total",
			Help:      "Work items processed, by outcome",
		}, []string{"outcome"}),
		fieldsFound: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fields_found_total",
			Help:      "Derived fields resolved to a real value",
		}, []string{"field"}),
		attempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Extraction attempts, retries included",
		}),
		itemDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_duration_seconds",
			Help:      "Wall time per work item across all attempts",
			Buckets:   []float64{5, 10, 20, 30, 45, 60, 90, 120, 180, 300},
		}),
		batches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches run",
		}),
		blocks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_total",
			Help:      "Block signals received from the target",
		}),
		storeWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Batched store writes, by status",
		}, []string{"status"}),
		continuations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "continuations_total",
			Help:      "Continuation signals, by reason and delivery status",
		}, []string{"reason", "status"}),
	}
}

// Outcome classifies a final record against the fields that were requested
func Outcome(rec types.ExtractionRecord, required types.FieldSet) string {
	if rec.IsBlocked() {
		return OutcomeBlocked
	}
	resolved := 0
	for f := range required {
		if rec.Resolved(f) {
			resolved++
		}
	}
	switch {
	case len(required) > 0 && resolved == len(required):
		return OutcomeComplete
	case resolved > 0:
		return OutcomePartial
	}
	return OutcomeNotFound
}

// RecordResult counts one item's outcome, fields, attempts and duration
func (m *Metrics) RecordResult(res types.Result) {
	if m == nil {
		return
	}
	outcome := Outcome(res.Record, res.Item.Required)
	m.itemsProcessed.WithLabelValues(outcome).Inc()
	if outcome == OutcomeBlocked {
		m.blocks.Inc()
	}
	for _, f := range types.AllFields() {
		if res.Record.Resolved(f) {
			m.fieldsFound.WithLabelValues(string(f)).Inc()
		}
	}
	m.attempts.Add(float64(res.Attempts))
	m.itemDuration.Observe(res.Duration.Seconds())
}

// RecordBatch counts a finished batch
func (m *Metrics) RecordBatch() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

// RecordStoreWrite counts a write-back call
func (m *Metrics) RecordStoreWrite(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.storeWrites.WithLabelValues(status).Inc()
}

// RecordContinuation counts a continuation emission
func (m *Metrics) RecordContinuation(reason, status string) {
	if m == nil {
		return
	}
	m.continuations.WithLabelValues(reason, status).Inc()
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Timeout: 10 * time.Second})
}
