package clientid

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iborker/iborker/internal/errors"
)

// Failure reasons used as the "reason" label.
const (
	ReasonExhausted       = "exhausted"
	ReasonTimeout         = "timeout"
	ReasonStore           = "store"
	ReasonUnknownCategory = "unknown_category"
	ReasonMissingClientID = "missing_client_id"
	ReasonInvalid         = "invalid"
)

// Metrics counts allocation outcomes in a private registry. Short-lived tool
// processes cannot be scraped, so the registry is written out as a
// node_exporter textfile instead. A nil *Metrics records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	allocations *prometheus.CounterVec
	failures    *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	reclaims    prometheus.Counter
	releases    prometheus.Counter
}

// NewMetrics creates the counters and registers them.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iborker_allocations_total",
			Help: "Client IDs handed out, by tool category and mode.",
		}, []string{"category", "mode"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iborker_allocation_failures_total",
			Help: "Failed client ID acquisitions, by tool category and reason.",
		}, []string{"category", "reason"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iborker_claim_conflicts_total",
			Help: "Candidate IDs skipped because a live process held them.",
		}, []string{"category"}),
		reclaims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iborker_stale_reclaims_total",
			Help: "Claims that replaced a marker left by a dead process.",
		}),
		releases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iborker_releases_total",
			Help: "Auto-mode client IDs released.",
		}),
	}
	m.registry.MustRegister(m.allocations, m.failures, m.conflicts, m.reclaims, m.releases)
	return m
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) allocated(c Category, mode Mode) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(string(c), string(mode)).Inc()
}

func (m *Metrics) failed(c Category, reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(c), reason).Inc()
}

func (m *Metrics) conflict(c Category) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(string(c)).Inc()
}

func (m *Metrics) reclaimed() {
	if m == nil {
		return
	}
	m.reclaims.Inc()
}

func (m *Metrics) released() {
	if m == nil {
		return
	}
	m.releases.Inc()
}

// WriteTextfile writes the registry to path in the Prometheus text format.
// The file is replaced atomically. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create metrics directory")
	}
	return errors.Wrap(prometheus.WriteToTextfile(path, m.registry), "write metrics textfile")
}

// failureReason maps an acquisition error onto a "reason" label value.
func failureReason(err error) string {
	switch {
	case errors.Is(err, errors.ErrAllocationTimeout):
		return ReasonTimeout
	case errors.Is(err, errors.ErrRangeExhausted):
		return ReasonExhausted
	case errors.Is(err, errors.ErrStoreUnavailable):
		return ReasonStore
	case errors.Is(err, errors.ErrUnknownCategory):
		return ReasonUnknownCategory
	case errors.Is(err, errors.ErrMissingClientID):
		return ReasonMissingClientID
	default:
		return ReasonInvalid
	}
}
