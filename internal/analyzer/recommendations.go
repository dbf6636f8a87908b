package analyzer

import (
	"fmt"

	"github.com/illenko/usagewatch/pkg/models"
)

type RecommendationsEngine struct {
	projectionHorizonDays int
	highGrowthRate        float64
}

type RecommendationsConfig struct {
	ProjectionHorizonDays int
	HighGrowthRate        float64
}

func NewRecommendationsEngine(cfg RecommendationsConfig) *RecommendationsEngine {
	if cfg.ProjectionHorizonDays == 0 {
		cfg.ProjectionHorizonDays = 30
	}
	if cfg.HighGrowthRate == 0 {
		cfg.HighGrowthRate = 20
	}

	return &RecommendationsEngine{
		projectionHorizonDays: cfg.ProjectionHorizonDays,
		highGrowthRate:        cfg.HighGrowthRate,
	}
}

// Recommend returns the suggested actions for the given per-metric health, in
// metric order. Disabled metrics only produce a configuration hint.
func (e *RecommendationsEngine) Recommend(metrics []models.MetricHealth) []string {
	actions := []string{}
	for _, m := range metrics {
		actions = append(actions, e.analyzeMetric(m)...)
	}
	return actions
}

func (e *RecommendationsEngine) analyzeMetric(m models.MetricHealth) []string {
	if !m.Enabled {
		return []string{fmt.Sprintf("Configure a capacity for %s to enable monitoring", m.Type.Label())}
	}

	var recs []string

	if rec := e.checkStatus(m); rec != "" {
		recs = append(recs, rec)
	}

	if rec := e.checkProjection(m); rec != "" {
		recs = append(recs, rec)
	}

	if rec := e.checkGrowth(m); rec != "" {
		recs = append(recs, rec)
	}

	return recs
}

func (e *RecommendationsEngine) checkStatus(m models.MetricHealth) string {
	switch m.Status {
	case models.StatusCritical:
		if m.Type == models.MetricDisk {
			return fmt.Sprintf("Disk usage is at %.1f%%: increase the storage quota or archive old courses and backups", m.Percentage)
		}
		return fmt.Sprintf("%s is at %.1f%% of the licensed limit: upgrade the plan or suspend inactive accounts", m.Type.Label(), m.Percentage)
	case models.StatusWarning:
		if m.Type == models.MetricDisk {
			return fmt.Sprintf("Disk usage is at %.1f%%: review large files and purge unused backups", m.Percentage)
		}
		return fmt.Sprintf("%s is at %.1f%% of the licensed limit: plan a capacity increase", m.Type.Label(), m.Percentage)
	}
	return ""
}

func (e *RecommendationsEngine) checkProjection(m models.MetricHealth) string {
	if m.Status == models.StatusCritical {
		return ""
	}
	if m.DaysToThreshold >= NotProjected || m.DaysToThreshold > e.projectionHorizonDays {
		return ""
	}
	return fmt.Sprintf("%s is projected to reach %.0f%% in %d days", m.Type.Label(), CriticalLevel, m.DaysToThreshold)
}

func (e *RecommendationsEngine) checkGrowth(m models.MetricHealth) string {
	if m.GrowthRate < e.highGrowthRate {
		return ""
	}
	return fmt.Sprintf("%s is growing %.1f%% per month: review recent activity", m.Type.Label(), m.GrowthRate)
}
