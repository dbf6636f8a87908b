package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illenko/usagewatch/pkg/models"
)

func TestRecorder_ObserveSample(t *testing.T) {
	r := newRecorder(prometheus.NewRegistry())

	r.ObserveSample(models.MetricSample{Type: models.MetricDisk, Timestamp: 1700000000, Value: 950, Percentage: 95}, models.StatusCritical, 4.5)

	assert.Equal(t, 950.0, testutil.ToFloat64(r.value.WithLabelValues("disk")))
	assert.Equal(t, 95.0, testutil.ToFloat64(r.percentage.WithLabelValues("disk")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.status.WithLabelValues("disk")))
	assert.Equal(t, 4.5, testutil.ToFloat64(r.growth.WithLabelValues("disk")))
}

func TestRecorder_Notifications(t *testing.T) {
	r := newRecorder(prometheus.NewRegistry())

	r.NotificationSent(models.MetricUsers, models.SeverityWarning)
	r.NotificationSent(models.MetricUsers, models.SeverityWarning)
	r.NotificationFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.notificationsSent.WithLabelValues("users", "warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notificationsFailed))
}

func TestRecorder_InstrumentTask(t *testing.T) {
	r := newRecorder(prometheus.NewRegistry())
	boom := errors.New("boom")

	ok := r.InstrumentTask("cleanup", func(context.Context) error { return nil })
	fail := r.InstrumentTask("cleanup", func(context.Context) error { return boom })
	slow := r.InstrumentTask("cleanup", func(context.Context) error { return context.DeadlineExceeded })

	require.NoError(t, ok(context.Background()))
	require.ErrorIs(t, fail(context.Background()), boom)
	require.Error(t, slow(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.taskRuns.WithLabelValues("cleanup", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.taskRuns.WithLabelValues("cleanup", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.taskRuns.WithLabelValues("cleanup", "timeout")))
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.NotificationFailed()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "usagewatch_notifications_failed_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRecorder_TaskDurationHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newRecorder(reg)

	run := r.InstrumentTask("collect_disk", func(context.Context) error { return nil })
	require.NoError(t, run(context.Background()))
	require.NoError(t, run(context.Background()))

	families, err := reg.Gather()
	require.NoError(t, err)

	var hist *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "usagewatch_task_duration_seconds" {
			hist = mf
		}
	}
	require.NotNil(t, hist)
	assert.Equal(t, dto.MetricType_HISTOGRAM, hist.GetType())
	require.Len(t, hist.GetMetric(), 1)
	assert.Equal(t, "collect_disk", hist.GetMetric()[0].GetLabel()[0].GetValue())
	assert.Equal(t, uint64(2), hist.GetMetric()[0].GetHistogram().GetSampleCount())
}
