package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(AlertsIngested.WithLabelValues("new"))
	AlertsIngested.WithLabelValues("new").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AlertsIngested.WithLabelValues("new")))

	before = testutil.ToFloat64(NotificationsTotal.WithLabelValues("slack", "sent"))
	NotificationsTotal.WithLabelValues("slack", "sent").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(NotificationsTotal.WithLabelValues("slack", "sent")))

	before = testutil.ToFloat64(AsyncTasksDropped)
	AsyncTasksDropped.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AsyncTasksDropped))
}
