package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordItem(t *testing.T) {
	before := testutil.ToFloat64(itemsTotal.WithLabelValues("dcm2niix", "converted"))
	RecordItem("dcm2niix", "converted")
	RecordItem("dcm2niix", "converted")
	assert.Equal(t, before+2, testutil.ToFloat64(itemsTotal.WithLabelValues("dcm2niix", "converted")))

	beforeSkip := testutil.ToFloat64(itemsTotal.WithLabelValues("none", "skipped"))
	RecordItem("", "skipped")
	assert.Equal(t, beforeSkip+1, testutil.ToFloat64(itemsTotal.WithLabelValues("none", "skipped")))
}

func TestRunGauge(t *testing.T) {
	before := testutil.ToFloat64(runsActive)
	RunStarted()
	assert.Equal(t, before+1, testutil.ToFloat64(runsActive))
	RunFinished()
	assert.Equal(t, before, testutil.ToFloat64(runsActive))
}

func TestObserveConversion(t *testing.T) {
	ObserveConversion("plastimatch", 1500*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(conversionDuration, "niftiwork_conversion_duration_seconds"))
}
