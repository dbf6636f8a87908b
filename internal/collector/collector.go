package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/illenko/usagewatch/internal/analyzer"
	"github.com/illenko/usagewatch/internal/storage"
	"github.com/illenko/usagewatch/internal/thresholds"
	"github.com/illenko/usagewatch/pkg/models"
)

// Observer is notified of every stored sample.
type Observer interface {
	ObserveSample(s models.MetricSample, status models.Status, growthRate float64)
}

type nopObserver struct{}

func (nopObserver) ObserveSample(models.MetricSample, models.Status, float64) {}

type Collector struct {
	db         *storage.DB
	thresholds *thresholds.Source
	observer   Observer
	logger     *slog.Logger
}

func New(db *storage.DB, src *thresholds.Source, observer Observer, logger *slog.Logger) *Collector {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{db: db, thresholds: src, observer: observer, logger: logger}
}

type CollectResult struct {
	Samples  []models.MetricSample
	Duration time.Duration
}

// Collect reads source and, per reading, appends a sample and (at most once
// per analyzer.MinGrowthInterval) a growth entry in one transaction.
func (c *Collector) Collect(ctx context.Context, source Source, now time.Time) (*CollectResult, error) {
	start := time.Now()
	logger := c.logger.With("source", source.Name())

	readings, err := source.Read(ctx, now)
	if err != nil {
		return nil, err
	}

	result := &CollectResult{}
	for _, r := range readings {
		sample, status, growth, err := c.store(ctx, r, now)
		if err != nil {
			return result, fmt.Errorf("failed to store %s sample: %w", r.Type, err)
		}
		c.observer.ObserveSample(sample, status, growth)
		result.Samples = append(result.Samples, sample)

		logger.Debug("sample stored",
			"type", sample.Type,
			"value", sample.Value,
			"percentage", sample.Percentage,
			"status", status,
		)
	}

	result.Duration = time.Since(start)
	logger.Info("collection complete", "samples", len(result.Samples), "duration", result.Duration)
	return result, nil
}

func (c *Collector) store(ctx context.Context, r Reading, now time.Time) (models.MetricSample, models.Status, float64, error) {
	var (
		sample models.MetricSample
		status models.Status
		growth float64
	)

	err := c.db.InTx(ctx, func(tx *storage.Tx) error {
		cfg, err := c.thresholds.Load(ctx, tx.Settings, r.Type)
		if err != nil {
			return err
		}

		var pct float64
		pct, status = analyzer.Evaluate(r.Value, cfg.Capacity, cfg.WarningLevel)
		sample = models.MetricSample{
			Type:       r.Type,
			Timestamp:  now.Unix(),
			Value:      r.Value,
			Threshold:  cfg.Capacity,
			Percentage: pct,
		}
		if _, err := tx.Samples.Insert(ctx, &sample); err != nil {
			return err
		}

		history, err := tx.Settings.GrowthHistory(ctx, r.Type)
		if err != nil {
			return err
		}
		entry, ok := analyzer.NextGrowthEntry(history, r.Value, now)
		if !ok {
			growth = analyzer.GrowthRate(history)
			return nil
		}
		history = analyzer.AppendGrowth(history, entry)
		growth = analyzer.GrowthRate(history)
		return tx.Settings.SaveGrowthHistory(ctx, r.Type, history)
	})
	return sample, status, growth, err
}

// CollectAll runs every source concurrently. Sources are independent: the
// samples of successful sources are kept even if another fails.
func (c *Collector) CollectAll(ctx context.Context, sources []Source, now time.Time) ([]models.MetricSample, error) {
	results := make([]*CollectResult, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			res, err := c.Collect(ctx, src, now)
			results[i] = res
			if err != nil {
				return fmt.Errorf("%s: %w", src.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	var samples []models.MetricSample
	for _, res := range results {
		if res != nil {
			samples = append(samples, res.Samples...)
		}
	}
	return samples, err
}
