package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/illenko/usagewatch/internal/analyzer"
	"github.com/illenko/usagewatch/internal/clock"
	"github.com/illenko/usagewatch/internal/notify"
	"github.com/illenko/usagewatch/internal/storage"
	"github.com/illenko/usagewatch/internal/thresholds"
	"github.com/illenko/usagewatch/pkg/models"
)

// Service is the read and configuration surface used by the API and CLI.
type Service struct {
	db                *storage.DB
	thresholds        *thresholds.Source
	recs              *analyzer.RecommendationsEngine
	defaultRecipients []string
	clock             clock.Clock
	logger            *slog.Logger
}

type Config struct {
	DefaultRecipients []string
	Recommendations   analyzer.RecommendationsConfig
	Clock             clock.Clock
	Logger            *slog.Logger
}

func New(db *storage.DB, src *thresholds.Source, cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		db:                db,
		thresholds:        src,
		recs:              analyzer.NewRecommendationsEngine(cfg.Recommendations),
		defaultRecipients: cfg.DefaultRecipients,
		clock:             cfg.Clock,
		logger:            cfg.Logger,
	}
}

// Health builds a snapshot of every metric. It never fails: inputs that
// cannot be read leave the affected metric disabled and healthy.
func (s *Service) Health(ctx context.Context) models.HealthSnapshot {
	now := s.clock.Now()
	snap := models.HealthSnapshot{
		Status:      models.StatusHealthy,
		GeneratedAt: now,
		Metrics:     make([]models.MetricHealth, 0, len(models.AllMetrics)),
		Alerts:      []models.Alert{},
	}

	for _, t := range models.AllMetrics {
		h, alert := s.metricHealth(ctx, t)
		snap.Metrics = append(snap.Metrics, h)
		if alert != nil {
			snap.Alerts = append(snap.Alerts, *alert)
		}
		if h.Status.Rank() > snap.Status.Rank() {
			snap.Status = h.Status
		}
	}

	snap.RecommendedActions = s.recs.Recommend(snap.Metrics)
	return snap
}

func (s *Service) metricHealth(ctx context.Context, t models.MetricType) (models.MetricHealth, *models.Alert) {
	logger := s.logger.With("type", t)
	h := models.MetricHealth{
		Type:            t,
		Status:          models.StatusHealthy,
		DaysToThreshold: analyzer.NotProjected,
	}

	settings := s.db.Settings()

	if last, err := notify.LastNotified(ctx, settings, t); err != nil {
		logger.Warn("notification state unavailable", "error", err)
	} else if !last.IsZero() {
		h.LastNotifiedAt = &last
	}

	cfg, err := s.thresholds.Load(ctx, settings, t)
	if err != nil {
		logger.Warn("thresholds unavailable", "error", err)
		return h, nil
	}
	h.Capacity = cfg.Capacity
	h.WarningLevel = cfg.WarningLevel
	h.Enabled = cfg.Enabled()

	latest, err := s.db.Samples().Latest(ctx, t)
	if err != nil {
		logger.Warn("latest sample unavailable", "error", err)
		return h, nil
	}
	if latest == nil {
		return h, nil
	}
	sampledAt := latest.Time()
	h.LastSampleAt = &sampledAt
	h.Value = latest.Value

	if !h.Enabled {
		return h, nil
	}

	h.Percentage, h.Status = analyzer.Evaluate(latest.Value, cfg.Capacity, cfg.WarningLevel)

	history, err := settings.GrowthHistory(ctx, t)
	if err != nil {
		logger.Warn("growth history unavailable", "error", err)
	}
	h.GrowthRate = analyzer.GrowthRate(history)
	h.DaysToThreshold = analyzer.DaysToThreshold(latest.Value, analyzer.ProjectionTarget(cfg.Capacity), h.GrowthRate)

	if h.Status == models.StatusHealthy {
		return h, nil
	}

	severity := models.SeverityWarning
	if h.Status == models.StatusCritical {
		severity = models.SeverityCritical
	}
	return h, &models.Alert{
		MetricType: t,
		Severity:   severity,
		Message: fmt.Sprintf("%s is at %.1f%% of capacity (%s of %s)",
			t.Label(), h.Percentage, analyzer.FormatValue(t, h.Value), analyzer.FormatValue(t, h.Capacity)),
		Percentage:      h.Percentage,
		Value:           h.Value,
		Capacity:        h.Capacity,
		GrowthRate:      h.GrowthRate,
		DaysToThreshold: h.DaysToThreshold,
	}
}

// Trends returns the collected history of metric over the last days and its summary.
func (s *Service) Trends(ctx context.Context, days int, metric models.MetricType, field string) (*models.TrendReport, error) {
	period, err := analyzer.ParsePeriod(days)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: unknown metric type %q", ErrInvalidQuery, metric)
	}
	f, err := analyzer.ParseField(field)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	since := s.clock.Now().Add(-time.Duration(period) * 24 * time.Hour)
	samples, err := s.db.Samples().Query(ctx, metric, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s history: %w", metric, err)
	}
	if samples == nil {
		samples = []models.MetricSample{}
	}

	return &models.TrendReport{
		MetricType: metric,
		Days:       int(period),
		Field:      string(f),
		History:    samples,
		Summary:    analyzer.Analyze(samples, f),
	}, nil
}

type monitorError string

func (e monitorError) Error() string { return string(e) }

const (
	ErrInvalidQuery  = monitorError("invalid query")
	ErrInvalidUpdate = monitorError("invalid configuration update")
)
