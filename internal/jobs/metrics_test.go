package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	tr := m.Track("permissions:purge_user")
	tr.Removed(4)
	assert.NoError(t, tr.End(nil))

	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("permissions:purge_user").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("permissions:purge_user", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("permissions:purge_user", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("permissions:purge_user")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.removed.WithLabelValues("permissions:purge_user")))
}

func TestNilMetricsTrackerIsInert(t *testing.T) {
	var m *Metrics
	tr := m.Track("permissions:prune_orphans")
	tr.Removed(10)
	boom := errors.New("boom")
	assert.ErrorIs(t, tr.End(boom), boom)
}
