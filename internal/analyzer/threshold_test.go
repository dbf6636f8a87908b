package analyzer

import (
	"testing"

	"github.com/illenko/usagewatch/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		capacity float64
		warning  float64
		wantPct  float64
		want     models.Status
	}{
		{name: "healthy", value: 50, capacity: 100, warning: 70, wantPct: 50, want: models.StatusHealthy},
		{name: "warning at level", value: 70, capacity: 100, warning: 70, wantPct: 70, want: models.StatusWarning},
		{name: "critical at 90", value: 90, capacity: 100, warning: 70, wantPct: 90, want: models.StatusCritical},
		{name: "critical regardless of warning", value: 95, capacity: 100, warning: 99, wantPct: 95, want: models.StatusCritical},
		{name: "warning level above critical never warns", value: 85, capacity: 100, warning: 95, wantPct: 85, want: models.StatusHealthy},
		{name: "unset warning only critical", value: 85, capacity: 100, warning: 0, wantPct: 85, want: models.StatusHealthy},
		{name: "over capacity", value: 150, capacity: 100, warning: 70, wantPct: 150, want: models.StatusCritical},
		{name: "zero capacity disabled", value: 150, capacity: 0, warning: 70, wantPct: 0, want: models.StatusHealthy},
		{name: "negative capacity disabled", value: 150, capacity: -10, warning: 70, wantPct: 0, want: models.StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pct, status := Evaluate(tt.value, tt.capacity, tt.warning)
			assert.InDelta(t, tt.wantPct, pct, 1e-9)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestEvaluate_PercentageProperty(t *testing.T) {
	for _, capacity := range []float64{1, 7, 100, 1 << 30} {
		for _, frac := range []float64{0, 0.1, 0.5, 0.89, 0.9, 0.999, 1.2} {
			value := capacity * frac
			pct, status := Evaluate(value, capacity, 50)
			assert.InDelta(t, value/capacity*100, pct, 1e-9)
			assert.Equal(t, pct >= 90, status == models.StatusCritical, "capacity=%v frac=%v", capacity, frac)
		}
	}
}
