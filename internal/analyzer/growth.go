package analyzer

import (
	"time"

	"github.com/illenko/usagewatch/pkg/models"
)

// MaxGrowthEntries bounds the rolling growth history per metric.
const MaxGrowthEntries = 10

const month = 30 * 24 * time.Hour

// MinGrowthInterval is the minimum spacing between two growth entries.
const MinGrowthInterval = 24 * time.Hour

// NextGrowthEntry computes the monthly growth rate of usage relative to the
// most recent history entry. It returns false when the last entry is younger
// than MinGrowthInterval, in which case the history must be left unchanged.
func NextGrowthEntry(history []models.GrowthEntry, usage float64, now time.Time) (models.GrowthEntry, bool) {
	entry := models.GrowthEntry{Timestamp: now.Unix(), Usage: usage}
	if len(history) == 0 {
		return entry, true
	}

	prev := history[len(history)-1]
	elapsed := now.Sub(time.Unix(prev.Timestamp, 0))
	if elapsed < MinGrowthInterval {
		return models.GrowthEntry{}, false
	}
	if prev.Usage <= 0 {
		return entry, true
	}

	change := (usage - prev.Usage) / prev.Usage * 100
	entry.Rate = change * float64(month) / float64(elapsed)
	return entry, true
}

// AppendGrowth appends entry and keeps the newest MaxGrowthEntries.
func AppendGrowth(history []models.GrowthEntry, entry models.GrowthEntry) []models.GrowthEntry {
	out := make([]models.GrowthEntry, 0, len(history)+1)
	out = append(out, history...)
	out = append(out, entry)
	if len(out) > MaxGrowthEntries {
		out = out[len(out)-MaxGrowthEntries:]
	}
	return out
}

// GrowthRate is the smoothed monthly growth in percent.
func GrowthRate(history []models.GrowthEntry) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, e := range history {
		sum += e.Rate
	}
	return sum / float64(len(history))
}
