package analyzer

import "github.com/illenko/usagewatch/pkg/models"

// CriticalLevel is the system-wide critical percentage. It is not configurable per metric.
const CriticalLevel = 90.0

// Evaluate normalizes value against capacity and classifies it. A non-positive
// capacity disables evaluation and is always healthy.
func Evaluate(value, capacity, warningLevel float64) (float64, models.Status) {
	if capacity <= 0 {
		return 0, models.StatusHealthy
	}

	pct := value / capacity * 100

	switch {
	case pct >= CriticalLevel:
		return pct, models.StatusCritical
	case warningLevel > 0 && warningLevel < CriticalLevel && pct >= warningLevel:
		return pct, models.StatusWarning
	default:
		return pct, models.StatusHealthy
	}
}

// ProjectionTarget is the usage at which a metric becomes critical.
func ProjectionTarget(capacity float64) float64 {
	return capacity * CriticalLevel / 100
}
