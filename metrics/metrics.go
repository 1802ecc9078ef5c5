// Package metrics exposes Prometheus instrumentation for the tier store and
// the operator.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arloliu/sirius/errs"
)

const namespace = "sirius"

// Operation labels.
const (
	OpCompress   = "compress"
	OpDecompress = "decompress"
)

// Metrics holds the collectors registered for one registry.
type Metrics struct {
	Operations *prometheus.CounterVec
	Bytes      *prometheus.CounterVec
	TierBytes  *prometheus.GaugeVec
	Resets     prometheus.Counter
}

// New creates and registers the collectors with reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Compress and decompress calls by result",
		}, []string{"op", "result"}),
		Bytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "array_bytes_total",
			Help:      "Raw array bytes processed",
		}, []string{"op"}),
		TierBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tier_bytes",
			Help:      "Bytes held in each tier buffer",
		}, []string{"tier"}),
		Resets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_resets_total",
			Help:      "Tier store resets",
		}),
	}
}

// ObserveOperation counts one call of op with the result derived from err.
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, ResultLabel(err)).Inc()
}

// AddBytes adds n raw bytes to the op counter.
func (m *Metrics) AddBytes(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Bytes.WithLabelValues(op).Add(float64(n))
}

// SetTierBytes records the current length of a tier buffer.
func (m *Metrics) SetTierBytes(tier int, n int) {
	if m == nil {
		return
	}
	m.TierBytes.WithLabelValues(strconv.Itoa(tier)).Set(float64(n))
}

// ObserveReset counts a reset and drops all tier gauges.
func (m *Metrics) ObserveReset() {
	if m == nil {
		return
	}
	m.Resets.Inc()
	m.TierBytes.Reset()
}

// ResultLabel maps an error to a low-cardinality result label.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrTypeUnsupported):
		return "type_unsupported"
	case errors.Is(err, errs.ErrTierConfigurationConflict):
		return "configuration_conflict"
	case errors.Is(err, errs.ErrTierConfiguration):
		return "configuration"
	case errors.Is(err, errs.ErrTierDataMissing):
		return "data_missing"
	case errors.Is(err, errs.ErrMetadataCorrupt):
		return "metadata_corrupt"
	case errors.Is(err, errs.ErrBufferTooSmall):
		return "buffer_too_small"
	case errors.Is(err, errs.ErrTierCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, errs.ErrSegmentCorrupt):
		return "segment_corrupt"
	case errors.Is(err, errs.ErrInvalidArray):
		return "invalid_array"
	case errors.Is(err, errs.ErrSnapshotCorrupt):
		return "snapshot_corrupt"
	default:
		return "error"
	}
}
