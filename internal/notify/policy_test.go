package notify

import (
	"context"
	"testing"
	"time"

	"github.com/illenko/usagewatch/internal/storage"
	"github.com/illenko/usagewatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredInterval(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, RequiredInterval(71))
	assert.Equal(t, 72*time.Hour, RequiredInterval(90))
	assert.Equal(t, 24*time.Hour, RequiredInterval(95))
	assert.Equal(t, 12*time.Hour, RequiredInterval(99))
}

func TestRequiredInterval_Monotonic(t *testing.T) {
	prev := RequiredInterval(0)
	for p := 0.0; p <= 150; p += 0.25 {
		cur := RequiredInterval(p)
		assert.LessOrEqual(t, cur, prev, "interval grew at %.2f%%", p)
		prev = cur
	}
}

func TestPolicy_ShouldNotify(t *testing.T) {
	utc := NewPolicy(time.UTC)
	now := time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC)

	t.Run("below warning", func(t *testing.T) {
		assert.False(t, utc.ShouldNotify(models.MetricDisk, 79, 80, time.Time{}, now))
	})

	t.Run("never notified", func(t *testing.T) {
		assert.True(t, utc.ShouldNotify(models.MetricDisk, 80, 80, time.Time{}, now))
	})

	t.Run("critical above high warning level", func(t *testing.T) {
		assert.True(t, utc.ShouldNotify(models.MetricDisk, 92, 95, time.Time{}, now))
	})

	t.Run("scenario A interval elapsed", func(t *testing.T) {
		assert.True(t, utc.ShouldNotify(models.MetricDisk, 95, 90, now.Add(-48*time.Hour), now))
	})

	t.Run("scenario B interval not elapsed", func(t *testing.T) {
		assert.False(t, utc.ShouldNotify(models.MetricDisk, 95, 90, now.Add(-2*time.Hour), now))
	})

	t.Run("scenario C user metric outside hour", func(t *testing.T) {
		assert.False(t, utc.ShouldNotify(models.MetricUsers, 95, 80, time.Time{}, now))
		at0830 := time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)
		assert.True(t, utc.ShouldNotify(models.MetricUsers, 95, 80, time.Time{}, at0830))
		assert.False(t, utc.ShouldNotify(models.MetricUsers90d, 95, 80, at0830.Add(-time.Hour), at0830))
	})

	t.Run("user hour in configured zone", func(t *testing.T) {
		kyiv := time.FixedZone("EEST", 3*60*60)
		p := NewPolicy(kyiv)
		// 05:30 UTC is 08:30 at UTC+3.
		assert.True(t, p.ShouldNotify(models.MetricUsers, 95, 80, time.Time{}, time.Date(2026, 5, 4, 5, 30, 0, 0, time.UTC)))
		assert.False(t, p.ShouldNotify(models.MetricUsers, 95, 80, time.Time{}, time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)))
	})
}

func TestRecordNotified_Idempotent(t *testing.T) {
	db, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	last, err := LastNotified(ctx, db.Settings(), models.MetricDisk)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	now := time.Unix(1_760_000_000, 0)
	require.NoError(t, RecordNotified(ctx, db.Settings(), models.MetricDisk, now))
	require.NoError(t, RecordNotified(ctx, db.Settings(), models.MetricDisk, now))

	last, err = LastNotified(ctx, db.Settings(), models.MetricDisk)
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), last.Unix())

	all, err := db.Settings().GetAll(ctx, storage.NamespaceNotify)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestNotifyLevel(t *testing.T) {
	assert.Equal(t, 80.0, NotifyLevel(80))
	assert.Equal(t, 90.0, NotifyLevel(90))
	assert.Equal(t, 90.0, NotifyLevel(95), "critical usage notifies above a high warning level")
	assert.Equal(t, 90.0, NotifyLevel(0))

	p := NewPolicy(time.UTC)
	now := time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC)
	assert.True(t, p.ShouldNotify(models.MetricDisk, 92, 95, time.Time{}, now))
	assert.False(t, p.ShouldNotify(models.MetricDisk, 89, 95, time.Time{}, now))
}
