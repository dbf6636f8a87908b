package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/illenko/usagewatch/internal/monitor"
	"github.com/illenko/usagewatch/internal/scheduler"
	"github.com/illenko/usagewatch/pkg/models"
)

type Monitor interface {
	Health(ctx context.Context) models.HealthSnapshot
	Trends(ctx context.Context, days int, metric models.MetricType, field string) (*models.TrendReport, error)
	Config(ctx context.Context) (*monitor.ConfigView, error)
	UpdateConfig(ctx context.Context, update monitor.ConfigUpdate) (*monitor.ConfigView, error)
}

type TaskRunner interface {
	RunNow(ctx context.Context, name string) error
	Status() []scheduler.TaskStatus
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Handlers struct {
	monitor    Monitor
	tasks      TaskRunner
	db         Pinger
	prometheus HealthChecker
}

// NewHandlers wires the API. prometheus may be nil when user collection is disabled.
func NewHandlers(m Monitor, tasks TaskRunner, db Pinger, prometheus HealthChecker) *Handlers {
	return &Handlers{monitor: m, tasks: tasks, db: db, prometheus: prometheus}
}

type healthStatus struct {
	Status              string `json:"status"`
	DatabaseOK          bool   `json:"database_ok"`
	PrometheusConnected *bool  `json:"prometheus_connected,omitempty"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := healthStatus{Status: "healthy", DatabaseOK: true}

	if err := h.db.Ping(ctx); err != nil {
		status.Status = "unhealthy"
		status.DatabaseOK = false
	}

	if h.prometheus != nil {
		connected := h.prometheus.HealthCheck(ctx) == nil
		status.PrometheusConnected = &connected
		if !connected && status.Status == "healthy" {
			status.Status = "degraded"
		}
	}

	code := http.StatusOK
	if !status.DatabaseOK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Health(r.Context()))
}

func (h *Handlers) GetTrends(w http.ResponseWriter, r *http.Request) {
	days, err := parseIntParam(r, "days", 30)
	if err != nil {
		writeError(w, http.StatusBadRequest, "days must be an integer")
		return
	}

	metric := models.MetricType(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = models.MetricDisk
	}

	report, err := h.monitor.Trends(r.Context(), days, metric, r.URL.Query().Get("field"))
	if errors.Is(err, monitor.ErrInvalidQuery) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	view, err := h.monitor.Config(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var update monitor.ConfigUpdate

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	view, err := h.monitor.UpdateConfig(r.Context(), update)
	if errors.Is(err, monitor.ErrInvalidUpdate) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	h.runTask(w, r, scheduler.TaskCheckNotifications)
}

func (h *Handlers) RunTask(w http.ResponseWriter, r *http.Request) {
	h.runTask(w, r, r.PathValue("name"))
}

func (h *Handlers) runTask(w http.ResponseWriter, r *http.Request, name string) {
	err := h.tasks.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownTask):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrTaskAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"task": name, "status": "completed"})
	}
}

func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tasks.Status())
}
