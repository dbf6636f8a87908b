package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"golang.org/x/sync/errgroup"

	"github.com/illenko/usagewatch/pkg/models"
)

// Reading is one raw observation produced by a Source.
type Reading struct {
	Type  models.MetricType
	Value float64
}

type Source interface {
	Name() string
	Read(ctx context.Context, at time.Time) ([]Reading, error)
}

type DiskSource struct {
	path  string
	usage func(ctx context.Context, path string) (*disk.UsageStat, error)
}

func NewDiskSource(path string) *DiskSource {
	return &DiskSource{path: path, usage: disk.UsageWithContext}
}

func (s *DiskSource) Name() string { return "disk" }

func (s *DiskSource) Read(ctx context.Context, _ time.Time) ([]Reading, error) {
	stat, err := s.usage(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage of %s: %w", s.path, err)
	}
	return []Reading{{Type: models.MetricDisk, Value: float64(stat.Used)}}, nil
}

// Querier evaluates an instant query to a single number.
type Querier interface {
	QueryValue(ctx context.Context, query string, at time.Time) (float64, error)
}

// UsersSource reads the user counts from Prometheus. Both queries run in
// parallel and the source fails if either does.
type UsersSource struct {
	querier Querier
	queries map[models.MetricType]string
}

func NewUsersSource(q Querier, usersQuery, users90dQuery string) *UsersSource {
	queries := make(map[models.MetricType]string, 2)
	if usersQuery != "" {
		queries[models.MetricUsers] = usersQuery
	}
	if users90dQuery != "" {
		queries[models.MetricUsers90d] = users90dQuery
	}
	return &UsersSource{querier: q, queries: queries}
}

func (s *UsersSource) Name() string { return "users" }

func (s *UsersSource) Read(ctx context.Context, at time.Time) ([]Reading, error) {
	types := make([]models.MetricType, 0, len(s.queries))
	for _, t := range models.AllMetrics {
		if _, ok := s.queries[t]; ok {
			types = append(types, t)
		}
	}

	readings := make([]Reading, len(types))
	g, ctx := errgroup.WithContext(ctx)
	for i, t := range types {
		g.Go(func() error {
			v, err := s.querier.QueryValue(ctx, s.queries[t], at)
			if err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
			if v < 0 {
				return fmt.Errorf("%s: negative user count %v", t, v)
			}
			readings[i] = Reading{Type: t, Value: v}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return readings, nil
}
