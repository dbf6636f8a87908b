package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/illenko/usagewatch/pkg/models"
)

// Settings namespaces.
const (
	NamespaceThresholds    = "thresholds"
	NamespaceNotify        = "notify"
	NamespaceGrowth        = "growth"
	NamespaceNotifications = "notifications"
)

// SettingsRepository is the namespaced key/value configuration store.
type SettingsRepository struct {
	q querier
}

// Get returns the stored value and whether the key exists.
func (r *SettingsRepository) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	var value string
	err := r.q.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE namespace = ? AND key = ?",
		namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *SettingsRepository) Set(ctx context.Context, namespace, key, value string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO settings (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, namespace, key, value, time.Now().Unix())
	return err
}

func (r *SettingsRepository) GetAll(ctx context.Context, namespace string) (map[string]string, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT key, value FROM settings WHERE namespace = ?", namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		res[key] = value
	}
	return res, rows.Err()
}

// GrowthHistory returns the rolling growth history of the metric. A corrupt
// stored list is logged and treated as empty.
func (r *SettingsRepository) GrowthHistory(ctx context.Context, t models.MetricType) ([]models.GrowthEntry, error) {
	raw, ok, err := r.Get(ctx, NamespaceGrowth, string(t))
	if err != nil || !ok || raw == "" {
		return nil, err
	}

	var history []models.GrowthEntry
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		slog.Warn("discarding malformed growth history", "type", t, "error", err)
		return nil, nil
	}
	return history, nil
}

func (r *SettingsRepository) SaveGrowthHistory(ctx context.Context, t models.MetricType, history []models.GrowthEntry) error {
	if history == nil {
		history = []models.GrowthEntry{}
	}
	b, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode growth history: %w", err)
	}
	return r.Set(ctx, NamespaceGrowth, string(t), string(b))
}
