package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/illenko/usagewatch/pkg/models"
)

const namespace = "usagewatch"

// Recorder exposes usage, dispatch and task signals on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	value      *prometheus.GaugeVec
	percentage *prometheus.GaugeVec
	status     *prometheus.GaugeVec
	growth     *prometheus.GaugeVec
	sampledAt  *prometheus.GaugeVec

	notificationsSent   *prometheus.CounterVec
	notificationsFailed prometheus.Counter

	taskRuns     *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newRecorder(reg)
}

func newRecorder(reg *prometheus.Registry) *Recorder {
	r := &Recorder{
		registry: reg,
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_value",
			Help:      "Last collected raw value (bytes for disk, count for users).",
		}, []string{"type"}),
		percentage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_percentage",
			Help:      "Last collected value as a percentage of capacity.",
		}, []string{"type"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_status",
			Help:      "Last evaluated status: 0 healthy, 1 warning, 2 critical.",
		}, []string{"type"}),
		growth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_growth_rate_percent",
			Help:      "Smoothed monthly growth rate.",
		}, []string{"type"}),
		sampledAt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_last_sample_timestamp_seconds",
			Help:      "Unix time of the last collected sample.",
		}, []string{"type"}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Metric sections included in successfully sent notifications.",
		}, []string{"type", "severity"}),
		notificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Notification deliveries rejected by the mail provider.",
		}),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_total",
			Help:      "Scheduled task runs by result.",
		}, []string{"task", "result"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Scheduled task latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"task"}),
	}

	reg.MustRegister(
		r.value, r.percentage, r.status, r.growth, r.sampledAt,
		r.notificationsSent, r.notificationsFailed,
		r.taskRuns, r.taskDuration,
	)
	return r
}

func (r *Recorder) ObserveSample(s models.MetricSample, status models.Status, growthRate float64) {
	t := string(s.Type)
	r.value.WithLabelValues(t).Set(s.Value)
	r.percentage.WithLabelValues(t).Set(s.Percentage)
	r.status.WithLabelValues(t).Set(float64(status.Rank()))
	r.growth.WithLabelValues(t).Set(growthRate)
	r.sampledAt.WithLabelValues(t).Set(float64(s.Timestamp))
}

func (r *Recorder) NotificationSent(t models.MetricType, severity models.Severity) {
	r.notificationsSent.WithLabelValues(string(t), string(severity)).Inc()
}

func (r *Recorder) NotificationFailed() {
	r.notificationsFailed.Inc()
}

// InstrumentTask wraps a task function with run and latency accounting.
func (r *Recorder) InstrumentTask(name string, run func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		start := time.Now()
		err := run(ctx)
		r.taskDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		r.taskRuns.WithLabelValues(name, taskResult(err)).Inc()
		return err
	}
}

func taskResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
