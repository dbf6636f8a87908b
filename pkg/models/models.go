package models

import (
	"fmt"
	"time"
)

type MetricType string

const (
	MetricDisk     MetricType = "disk"
	MetricUsers    MetricType = "users"
	MetricUsers90d MetricType = "users_90d"
)

// AllMetrics lists every metric type in evaluation order.
var AllMetrics = []MetricType{MetricDisk, MetricUsers, MetricUsers90d}

func (t MetricType) Valid() bool {
	switch t {
	case MetricDisk, MetricUsers, MetricUsers90d:
		return true
	}
	return false
}

// IsUserMetric reports whether the metric counts users rather than bytes.
func (t MetricType) IsUserMetric() bool {
	return t == MetricUsers || t == MetricUsers90d
}

func (t MetricType) Label() string {
	switch t {
	case MetricDisk:
		return "Disk usage"
	case MetricUsers:
		return "Daily users"
	case MetricUsers90d:
		return "Users (90 days)"
	default:
		return string(t)
	}
}

func ParseMetricType(s string) (MetricType, error) {
	t := MetricType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown metric type %q", s)
	}
	return t, nil
}

type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

func (s Status) Rank() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// MetricSample is one observation of a metric. Threshold and Percentage are
// captured at write time so history survives later capacity changes.
type MetricSample struct {
	ID         int64      `json:"id"`
	Type       MetricType `json:"type"`
	Timestamp  int64      `json:"timestamp"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Percentage float64    `json:"percentage"`
	Notified   bool       `json:"notified,omitempty"`
}

func (s MetricSample) Time() time.Time {
	return time.Unix(s.Timestamp, 0)
}

type ThresholdConfig struct {
	Capacity     float64 `json:"capacity"`
	WarningLevel float64 `json:"warning_level"`
}

// Enabled is false when the capacity is not a usable limit.
func (c ThresholdConfig) Enabled() bool {
	return c.Capacity > 0
}

// GrowthEntry is one rolling growth-rate observation.
type GrowthEntry struct {
	Timestamp int64   `json:"timestamp"`
	Rate      float64 `json:"rate"`
	Usage     float64 `json:"usage"`
}

// Alert is produced by a single evaluation cycle for one metric.
type Alert struct {
	MetricType      MetricType `json:"metric_type"`
	Severity        Severity   `json:"severity"`
	Message         string     `json:"message"`
	Percentage      float64    `json:"percentage"`
	Value           float64    `json:"value"`
	Capacity        float64    `json:"capacity"`
	GrowthRate      float64    `json:"growth_rate"`
	DaysToThreshold int        `json:"days_to_threshold"`
}

type TrendSummary struct {
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Avg           float64 `json:"avg"`
	Trend         Trend   `json:"trend"`
	ChangePercent float64 `json:"change_percent"`
}

type TrendReport struct {
	MetricType MetricType     `json:"metric_type"`
	Days       int            `json:"days"`
	Field      string         `json:"field"`
	History    []MetricSample `json:"history"`
	Summary    TrendSummary   `json:"summary"`
}

// MetricHealth is the per-metric part of the health snapshot.
type MetricHealth struct {
	Type            MetricType `json:"type"`
	Enabled         bool       `json:"enabled"`
	Value           float64    `json:"value"`
	Capacity        float64    `json:"capacity"`
	WarningLevel    float64    `json:"warning_level"`
	Percentage      float64    `json:"percentage"`
	Status          Status     `json:"status"`
	GrowthRate      float64    `json:"growth_rate"`
	DaysToThreshold int        `json:"days_to_threshold"`
	LastSampleAt    *time.Time `json:"last_sample_at,omitempty"`
	LastNotifiedAt  *time.Time `json:"last_notified_at,omitempty"`
}

type HealthSnapshot struct {
	Status             Status         `json:"status"`
	GeneratedAt        time.Time      `json:"generated_at"`
	Metrics            []MetricHealth `json:"metrics"`
	Alerts             []Alert        `json:"alerts"`
	RecommendedActions []string       `json:"recommended_actions"`
}

type DispatchResult struct {
	Sent  bool         `json:"sent"`
	Types []MetricType `json:"types"`
}
