package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/illenko/usagewatch/pkg/models"
)

type SamplesRepository struct {
	q querier
}

// Insert appends a sample. Samples are never updated in place.
func (r *SamplesRepository) Insert(ctx context.Context, s *models.MetricSample) (int64, error) {
	query := `
		INSERT INTO metric_samples (type, timestamp, value, threshold, percentage, notified)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.q.ExecContext(ctx, query,
		string(s.Type), s.Timestamp, s.Value, s.Threshold, s.Percentage, boolToInt(s.Notified),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s sample: %w", s.Type, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.ID = id
	return id, nil
}

// Query returns collection samples of the given type recorded at or after
// since, in ascending timestamp order.
func (r *SamplesRepository) Query(ctx context.Context, t models.MetricType, since time.Time) ([]models.MetricSample, error) {
	return r.query(ctx, t, since, false)
}

// NotificationHistory returns the audit rows written when a notification for
// the metric was dispatched.
func (r *SamplesRepository) NotificationHistory(ctx context.Context, t models.MetricType, since time.Time) ([]models.MetricSample, error) {
	return r.query(ctx, t, since, true)
}

func (r *SamplesRepository) query(ctx context.Context, t models.MetricType, since time.Time, notified bool) ([]models.MetricSample, error) {
	query := `
		SELECT id, type, timestamp, value, threshold, percentage, notified
		FROM metric_samples
		WHERE type = ? AND timestamp >= ? AND notified = ?
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := r.q.QueryContext(ctx, query, string(t), since.Unix(), boolToInt(notified))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []models.MetricSample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			// One corrupt row must not hide the rest of the window.
			slog.Warn("skipping malformed sample row", "type", t, "error", err)
			continue
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Latest returns the most recent well-formed collection sample of the type,
// or nil.
func (r *SamplesRepository) Latest(ctx context.Context, t models.MetricType) (*models.MetricSample, error) {
	query := `
		SELECT id, type, timestamp, value, threshold, percentage, notified
		FROM metric_samples
		WHERE type = ? AND notified = 0
		ORDER BY timestamp DESC, id DESC
	`
	rows, err := r.q.QueryContext(ctx, query, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			slog.Warn("skipping malformed sample row", "type", t, "error", err)
			continue
		}
		return &s, nil
	}
	return nil, rows.Err()
}

// Delete removes samples older than the cutoff. An empty type prunes all types.
func (r *SamplesRepository) Delete(ctx context.Context, t models.MetricType, olderThan time.Time) (int64, error) {
	query := "DELETE FROM metric_samples WHERE timestamp < ?"
	args := []any{olderThan.Unix()}
	if t != "" {
		query += " AND type = ?"
		args = append(args, string(t))
	}

	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanSample(rows *sql.Rows) (models.MetricSample, error) {
	var (
		s                              models.MetricSample
		typ                            string
		ts, value, threshold, pct, ntf any
	)
	if err := rows.Scan(&s.ID, &typ, &ts, &value, &threshold, &pct, &ntf); err != nil {
		return s, err
	}

	s.Type = models.MetricType(typ)

	var err error
	if s.Timestamp, err = toInt64(ts); err != nil {
		return s, fmt.Errorf("row %d timestamp: %w", s.ID, err)
	}
	if s.Value, err = toFloat64(value); err != nil {
		return s, fmt.Errorf("row %d value: %w", s.ID, err)
	}
	if s.Threshold, err = toFloat64(threshold); err != nil {
		return s, fmt.Errorf("row %d threshold: %w", s.ID, err)
	}
	if s.Percentage, err = toFloat64(pct); err != nil {
		return s, fmt.Errorf("row %d percentage: %w", s.ID, err)
	}
	n, err := toInt64(ntf)
	if err != nil {
		return s, fmt.Errorf("row %d notified: %w", s.ID, err)
	}
	s.Notified = n != 0

	return s, nil
}

var errNullColumn = errors.New("unexpected NULL")

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	case nil:
		return 0, errNullColumn
	default:
		return 0, fmt.Errorf("unsupported column type %T", v)
	}
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		if x != float64(int64(x)) {
			return 0, fmt.Errorf("non-integral value %v", x)
		}
		return int64(x), nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	case nil:
		return 0, errNullColumn
	default:
		return 0, fmt.Errorf("unsupported column type %T", v)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
