package thresholds

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/illenko/usagewatch/internal/config"
	"github.com/illenko/usagewatch/internal/storage"
	"github.com/illenko/usagewatch/pkg/models"
)

func CapacityKey(t models.MetricType) string { return string(t) + "_capacity" }
func WarningKey(t models.MetricType) string  { return string(t) + "_warning" }

// Source resolves the effective threshold configuration of a metric: values
// stored in the settings table, falling back to the config file.
type Source struct {
	defaults config.ThresholdsConfig
	logger   *slog.Logger
}

func NewSource(defaults config.ThresholdsConfig, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{defaults: defaults, logger: logger}
}

// Load never fails on bad values: an unparsable or out-of-range setting
// disables evaluation of the metric and is logged. Only store errors are returned.
func (s *Source) Load(ctx context.Context, settings *storage.SettingsRepository, t models.MetricType) (models.ThresholdConfig, error) {
	cfg := s.defaults.For(t)

	stored, err := settings.GetAll(ctx, storage.NamespaceThresholds)
	if err != nil {
		return models.ThresholdConfig{}, fmt.Errorf("failed to read thresholds: %w", err)
	}

	if raw, ok := stored[CapacityKey(t)]; ok {
		v, err := parseNumber(raw)
		if err != nil || v < 0 {
			s.logger.Warn("invalid capacity, disabling evaluation", "type", t, "value", raw)
			return models.ThresholdConfig{}, nil
		}
		cfg.Capacity = v
	}

	if raw, ok := stored[WarningKey(t)]; ok {
		v, err := parseNumber(raw)
		if err != nil || v <= 0 || v > 100 {
			s.logger.Warn("invalid warning level, disabling evaluation", "type", t, "value", raw)
			return models.ThresholdConfig{}, nil
		}
		cfg.WarningLevel = v
	}

	return cfg, nil
}

// LoadAll resolves every metric type.
func (s *Source) LoadAll(ctx context.Context, settings *storage.SettingsRepository) (map[models.MetricType]models.ThresholdConfig, error) {
	out := make(map[models.MetricType]models.ThresholdConfig, len(models.AllMetrics))
	for _, t := range models.AllMetrics {
		cfg, err := s.Load(ctx, settings, t)
		if err != nil {
			return nil, err
		}
		out[t] = cfg
	}
	return out, nil
}

func Save(ctx context.Context, settings *storage.SettingsRepository, t models.MetricType, capacity, warning *float64) error {
	if capacity != nil {
		if err := settings.Set(ctx, storage.NamespaceThresholds, CapacityKey(t), formatNumber(*capacity)); err != nil {
			return fmt.Errorf("failed to save %s capacity: %w", t, err)
		}
	}
	if warning != nil {
		if err := settings.Set(ctx, storage.NamespaceThresholds, WarningKey(t), formatNumber(*warning)); err != nil {
			return fmt.Errorf("failed to save %s warning level: %w", t, err)
		}
	}
	return nil
}

func parseNumber(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %s", raw)
	}
	return v, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
