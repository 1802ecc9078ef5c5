package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/sirius/errs"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveOperation(OpCompress, nil)
	m.ObserveOperation(OpCompress, nil)
	m.ObserveOperation(OpDecompress, fmt.Errorf("%w: tier 3", errs.ErrTierDataMissing))
	m.AddBytes(OpCompress, 64)
	m.AddBytes(OpCompress, 0)
	m.SetTierBytes(0, 16)
	m.SetTierBytes(1, 8)

	require.InDelta(t, 2, testutil.ToFloat64(m.Operations.WithLabelValues(OpCompress, "ok")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.Operations.WithLabelValues(OpDecompress, "data_missing")), 0)
	require.InDelta(t, 64, testutil.ToFloat64(m.Bytes.WithLabelValues(OpCompress)), 0)
	require.Equal(t, 2, testutil.CollectAndCount(m.TierBytes))

	m.ObserveReset()
	require.InDelta(t, 1, testutil.ToFloat64(m.Resets), 0)
	require.Equal(t, 0, testutil.CollectAndCount(m.TierBytes))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveOperation(OpCompress, nil)
		m.AddBytes(OpCompress, 10)
		m.SetTierBytes(0, 1)
		m.ObserveReset()
	})
}

func TestResultLabel(t *testing.T) {
	cases := map[error]string{
		nil:                          "ok",
		errs.ErrTypeUnsupported:      "type_unsupported",
		errs.ErrTierConfiguration:    "configuration",
		errs.ErrChecksumMismatch:     "metadata_corrupt",
		errs.ErrBufferTooSmall:       "buffer_too_small",
		errs.ErrTierCapacityExceeded: "capacity_exceeded",
		errs.ErrSegmentCorrupt:       "segment_corrupt",
		errs.ErrInvalidArray:         "invalid_array",
		errs.ErrSnapshotCorrupt:      "snapshot_corrupt",
		fmt.Errorf("other"):          "error",
		fmt.Errorf("wrap: %w", errs.ErrTierConfigurationConflict): "configuration_conflict",
	}
	for err, want := range cases {
		require.Equal(t, want, ResultLabel(err))
	}
}
