package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/illenko/usagewatch/internal/analyzer"
	"github.com/illenko/usagewatch/internal/storage"
	"github.com/illenko/usagewatch/pkg/models"
)

// UserNotifyHour is the only local hour in which user metrics may notify.
const UserNotifyHour = 8

// RequiredInterval is the minimum time between two notifications for a
// metric at pct. It never grows as pct increases.
func RequiredInterval(pct float64) time.Duration {
	switch {
	case pct >= 98:
		return 12 * time.Hour
	case pct >= 95:
		return 24 * time.Hour
	case pct >= analyzer.CriticalLevel:
		return 72 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// NotifyLevel is the percentage from which a metric is eligible to notify.
// Critical usage always qualifies, even when the warning level is higher.
func NotifyLevel(warningLevel float64) float64 {
	if warningLevel <= 0 || warningLevel > analyzer.CriticalLevel {
		return analyzer.CriticalLevel
	}
	return warningLevel
}

type Policy struct {
	loc *time.Location
}

func NewPolicy(loc *time.Location) *Policy {
	if loc == nil {
		loc = time.UTC
	}
	return &Policy{loc: loc}
}

// ShouldNotify applies the level, hour and interval gates. A zero lastNotified
// means the metric was never notified.
func (p *Policy) ShouldNotify(t models.MetricType, pct, warningLevel float64, lastNotified, now time.Time) bool {
	if pct < NotifyLevel(warningLevel) {
		return false
	}
	if t.IsUserMetric() && now.In(p.loc).Hour() != UserNotifyHour {
		return false
	}
	if lastNotified.IsZero() {
		return true
	}
	return now.Sub(lastNotified) >= RequiredInterval(pct)
}

func lastNotifiedKey(t models.MetricType) string {
	return "last_notified_" + string(t)
}

// LastNotified returns the zero time when the metric was never notified or
// the stored value is unreadable.
func LastNotified(ctx context.Context, settings *storage.SettingsRepository, t models.MetricType) (time.Time, error) {
	raw, ok, err := settings.Get(ctx, storage.NamespaceNotify, lastNotifiedKey(t))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read notification state: %w", err)
	}
	if !ok {
		return time.Time{}, nil
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ts <= 0 {
		return time.Time{}, nil
	}
	return time.Unix(ts, 0), nil
}

// RecordNotified stores now as the last notification time of the metric.
// Recording the same instant twice leaves the state unchanged.
func RecordNotified(ctx context.Context, settings *storage.SettingsRepository, t models.MetricType, now time.Time) error {
	if err := settings.Set(ctx, storage.NamespaceNotify, lastNotifiedKey(t), strconv.FormatInt(now.Unix(), 10)); err != nil {
		return fmt.Errorf("failed to record notification for %s: %w", t, err)
	}
	return nil
}
