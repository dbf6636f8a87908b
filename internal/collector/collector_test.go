package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illenko/usagewatch/internal/analyzer"
	"github.com/illenko/usagewatch/internal/config"
	"github.com/illenko/usagewatch/internal/storage"
	"github.com/illenko/usagewatch/internal/thresholds"
	"github.com/illenko/usagewatch/pkg/models"
)

type querierStub struct {
	QueryValueCalled func(query string) (float64, error)
}

func (s *querierStub) QueryValue(_ context.Context, query string, _ time.Time) (float64, error) {
	return s.QueryValueCalled(query)
}

type sourceStub struct {
	name     string
	readings []Reading
	err      error
}

func (s *sourceStub) Name() string { return s.name }

func (s *sourceStub) Read(context.Context, time.Time) ([]Reading, error) {
	return s.readings, s.err
}

type observerStub struct {
	mu      sync.Mutex
	samples []models.MetricSample
	status  []models.Status
}

func (o *observerStub) ObserveSample(s models.MetricSample, status models.Status, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.samples = append(o.samples, s)
	o.status = append(o.status, status)
}

func newCollector(t *testing.T) (*Collector, *storage.DB, *observerStub) {
	t.Helper()
	db, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	src := thresholds.NewSource(config.ThresholdsConfig{
		Disk:  config.ThresholdConfig{Capacity: 1000, WarningLevel: 80},
		Users: config.ThresholdConfig{Capacity: 200, WarningLevel: 80},
	}, nil)
	obs := &observerStub{}
	return New(db, src, obs, nil), db, obs
}

func TestDiskSource_Read(t *testing.T) {
	src := NewDiskSource("/data")
	src.usage = func(_ context.Context, path string) (*disk.UsageStat, error) {
		assert.Equal(t, "/data", path)
		return &disk.UsageStat{Path: path, Total: 1000, Used: 420}, nil
	}

	readings, err := src.Read(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []Reading{{Type: models.MetricDisk, Value: 420}}, readings)
}

func TestUsersSource_Read(t *testing.T) {
	q := &querierStub{QueryValueCalled: func(query string) (float64, error) {
		switch query {
		case "daily":
			return 150, nil
		case "quarter":
			return 900, nil
		}
		return 0, errors.New("unexpected query")
	}}

	readings, err := NewUsersSource(q, "daily", "quarter").Read(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []Reading{
		{Type: models.MetricUsers, Value: 150},
		{Type: models.MetricUsers90d, Value: 900},
	}, readings)

	onlyDaily, err := NewUsersSource(q, "daily", "").Read(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, onlyDaily, 1)
}

func TestUsersSource_ReadFailure(t *testing.T) {
	q := &querierStub{QueryValueCalled: func(query string) (float64, error) {
		if query == "quarter" {
			return 0, errors.New("prometheus unreachable")
		}
		return 10, nil
	}}

	_, err := NewUsersSource(q, "daily", "quarter").Read(context.Background(), time.Now())
	assert.ErrorContains(t, err, "prometheus unreachable")
}

func TestCollector_StoresSampleAndGrowth(t *testing.T) {
	c, db, obs := newCollector(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	src := &sourceStub{name: "disk", readings: []Reading{{Type: models.MetricDisk, Value: 500}}}
	_, err := c.Collect(ctx, src, start)
	require.NoError(t, err)

	src.readings = []Reading{{Type: models.MetricDisk, Value: 850}}
	res, err := c.Collect(ctx, src, start.Add(30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, res.Samples, 1)
	assert.InDelta(t, 85, res.Samples[0].Percentage, 1e-9)
	assert.Equal(t, 1000.0, res.Samples[0].Threshold)

	samples, err := db.Samples().Query(ctx, models.MetricDisk, start)
	require.NoError(t, err)
	assert.Len(t, samples, 2)

	history, err := db.Settings().GrowthHistory(ctx, models.MetricDisk)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Zero(t, history[0].Rate)
	assert.InDelta(t, 70, history[1].Rate, 1e-9)

	require.Len(t, obs.status, 2)
	assert.Equal(t, models.StatusWarning, obs.status[1])
}

func TestCollector_SubDailyTickKeepsGrowthRate(t *testing.T) {
	c, db, _ := newCollector(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &sourceStub{name: "disk"}

	for _, step := range []struct {
		value float64
		at    time.Time
	}{
		{500, start},
		{650, start.Add(30 * 24 * time.Hour)},
		{900, start.Add(30*24*time.Hour + 10*time.Second)},
		{640, start.Add(30*24*time.Hour + time.Hour)},
	} {
		src.readings = []Reading{{Type: models.MetricDisk, Value: step.value}}
		_, err := c.Collect(ctx, src, step.at)
		require.NoError(t, err)
	}

	history, err := db.Settings().GrowthHistory(ctx, models.MetricDisk)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.InDelta(t, 15, analyzer.GrowthRate(history), 1e-9)

	samples, err := db.Samples().Query(ctx, models.MetricDisk, start)
	require.NoError(t, err)
	assert.Len(t, samples, 4, "samples are stored on every tick")
}

func TestCollector_GrowthHistoryIsBounded(t *testing.T) {
	c, db, _ := newCollector(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < analyzer.MaxGrowthEntries+5; i++ {
		src := &sourceStub{name: "users", readings: []Reading{{Type: models.MetricUsers, Value: float64(100 + i)}}}
		_, err := c.Collect(ctx, src, start.Add(time.Duration(i)*24*time.Hour))
		require.NoError(t, err)
	}

	history, err := db.Settings().GrowthHistory(ctx, models.MetricUsers)
	require.NoError(t, err)
	assert.Len(t, history, analyzer.MaxGrowthEntries)
}

func TestCollector_CollectAllKeepsSuccessfulSources(t *testing.T) {
	c, db, _ := newCollector(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	samples, err := c.CollectAll(ctx, []Source{
		&sourceStub{name: "disk", readings: []Reading{{Type: models.MetricDisk, Value: 100}}},
		&sourceStub{name: "users", err: errors.New("boom")},
	}, now)
	require.ErrorContains(t, err, "users: boom")
	require.Len(t, samples, 1)

	stored, err := db.Samples().Query(ctx, models.MetricDisk, now)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
