package analyzer

import (
	"fmt"
	"math"

	"github.com/illenko/usagewatch/pkg/models"
)

// NotProjected is returned by DaysToThreshold when no near-term projection exists.
const NotProjected = 999

// trendBand is the change (in percent) beyond which a window counts as moving.
const trendBand = 5.0

type Field string

const (
	FieldValue      Field = "value"
	FieldPercentage Field = "percentage"
)

func ParseField(s string) (Field, error) {
	switch Field(s) {
	case "", FieldValue:
		return FieldValue, nil
	case FieldPercentage:
		return FieldPercentage, nil
	default:
		return "", fmt.Errorf("unknown trend field %q", s)
	}
}

// TrendPeriod is a supported analysis window.
type TrendPeriod int

const (
	PeriodWeek    TrendPeriod = 7
	PeriodMonth   TrendPeriod = 30
	PeriodQuarter TrendPeriod = 90
)

// ParsePeriod accepts 7, 30 or 90 days; zero selects the month window.
func ParsePeriod(days int) (TrendPeriod, error) {
	switch TrendPeriod(days) {
	case 0:
		return PeriodMonth, nil
	case PeriodWeek, PeriodMonth, PeriodQuarter:
		return TrendPeriod(days), nil
	default:
		return 0, fmt.Errorf("unsupported trend period %d days (use 7, 30 or 90)", days)
	}
}

// Analyze summarizes samples ordered by ascending timestamp.
func Analyze(samples []models.MetricSample, field Field) models.TrendSummary {
	if len(samples) == 0 {
		return models.TrendSummary{Trend: models.TrendStable}
	}

	pick := func(s models.MetricSample) float64 {
		if field == FieldPercentage {
			return s.Percentage
		}
		return s.Value
	}

	first := pick(samples[0])
	summary := models.TrendSummary{Min: first, Max: first}

	var sum float64
	for _, s := range samples {
		v := pick(s)
		summary.Min = math.Min(summary.Min, v)
		summary.Max = math.Max(summary.Max, v)
		sum += v
	}
	summary.Avg = sum / float64(len(samples))

	last := pick(samples[len(samples)-1])
	if first > 0 {
		summary.ChangePercent = (last - first) / first * 100
	}

	switch {
	case summary.ChangePercent > trendBand:
		summary.Trend = models.TrendUp
	case summary.ChangePercent < -trendBand:
		summary.Trend = models.TrendDown
	default:
		summary.Trend = models.TrendStable
	}

	return summary
}

// DaysToThreshold projects how many days current needs to reach target when
// growing at monthlyRate percent per month.
func DaysToThreshold(current, target, monthlyRate float64) int {
	if monthlyRate <= 0 || current <= 0 {
		return NotProjected
	}

	dailyRate := monthlyRate / 30
	days := math.Ceil((target - current) / (current * dailyRate / 100))
	if math.IsNaN(days) || math.IsInf(days, 0) || days <= 0 || days >= NotProjected {
		return NotProjected
	}
	return int(days)
}

func FormatBytes(bytes float64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", bytes/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", bytes/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", bytes/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", bytes/KB)
	default:
		return fmt.Sprintf("%.0f B", bytes)
	}
}

// FormatValue renders a metric value in its natural unit.
func FormatValue(t models.MetricType, v float64) string {
	if t == models.MetricDisk {
		return FormatBytes(v)
	}
	return fmt.Sprintf("%.0f users", v)
}
