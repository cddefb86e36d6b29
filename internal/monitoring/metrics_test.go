package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordResolution(t *testing.T) {
	before := testutil.ToFloat64(resolutionsTotal.WithLabelValues("REPORT_READY", "false"))
	RecordResolution("REPORT_READY", false)
	assert.InDelta(t, before+1, testutil.ToFloat64(resolutionsTotal.WithLabelValues("REPORT_READY", "false")), 1e-9)
}

func TestRecordGeneration_UnknownTrigger(t *testing.T) {
	before := testutil.ToFloat64(generationsTotal.WithLabelValues("success", "unknown"))
	RecordGeneration("success", "")
	assert.InDelta(t, before+1, testutil.ToFloat64(generationsTotal.WithLabelValues("success", "unknown")), 1e-9)
}

func TestOutcomeLabels(t *testing.T) {
	before := testutil.ToFloat64(notificationsTotal.WithLabelValues("email", "error"))
	RecordNotification("email", errors.New("smtp down"))
	assert.InDelta(t, before+1, testutil.ToFloat64(notificationsTotal.WithLabelValues("email", "error")), 1e-9)

	ObserveScoring(250*time.Millisecond, nil)
	assert.Equal(t, 1, testutil.CollectAndCount(scoringLatency))
}

func TestSetCircuitState(t *testing.T) {
	SetCircuitState("scoring", 1)
	assert.InDelta(t, 1, testutil.ToFloat64(circuitState.WithLabelValues("scoring")), 1e-9)
	SetCircuitState("scoring", 0)
	assert.InDelta(t, 0, testutil.ToFloat64(circuitState.WithLabelValues("scoring")), 1e-9)
}
