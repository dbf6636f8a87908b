package monitor

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/illenko/usagewatch/internal/notify"
	"github.com/illenko/usagewatch/internal/storage"
	"github.com/illenko/usagewatch/internal/thresholds"
	"github.com/illenko/usagewatch/pkg/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type ThresholdUpdate struct {
	Capacity     *float64 `json:"capacity,omitempty" validate:"omitempty,gt=0"`
	WarningLevel *float64 `json:"warning_level,omitempty" validate:"omitempty,gt=0,lte=100"`
}

// ConfigUpdate is a partial update. Absent fields keep their current values.
type ConfigUpdate struct {
	Thresholds map[models.MetricType]ThresholdUpdate `json:"thresholds,omitempty" validate:"omitempty,dive,keys,oneof=disk users users_90d,endkeys"`
	Recipients *[]string                             `json:"recipients,omitempty" validate:"omitempty,dive,email"`
}

func (u ConfigUpdate) empty() bool {
	if u.Recipients != nil {
		return false
	}
	for _, t := range u.Thresholds {
		if t.Capacity != nil || t.WarningLevel != nil {
			return false
		}
	}
	return true
}

// ConfigView is the effective configuration.
type ConfigView struct {
	Thresholds map[models.MetricType]models.ThresholdConfig `json:"thresholds"`
	Recipients []string                                     `json:"recipients"`
}

func (s *Service) Config(ctx context.Context) (*ConfigView, error) {
	settings := s.db.Settings()

	all, err := s.thresholds.LoadAll(ctx, settings)
	if err != nil {
		return nil, err
	}
	recipients, err := notify.LoadRecipients(ctx, settings, s.defaultRecipients)
	if err != nil {
		return nil, err
	}
	if recipients == nil {
		recipients = []string{}
	}
	return &ConfigView{Thresholds: all, Recipients: recipients}, nil
}

// UpdateConfig validates the whole update first and applies it in a single
// transaction, so either every field changes or none does.
func (s *Service) UpdateConfig(ctx context.Context, update ConfigUpdate) (*ConfigView, error) {
	if update.empty() {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidUpdate)
	}
	if err := validate.Struct(update); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUpdate, err)
	}

	err := s.db.InTx(ctx, func(tx *storage.Tx) error {
		for _, t := range models.AllMetrics {
			u, ok := update.Thresholds[t]
			if !ok {
				continue
			}
			if err := thresholds.Save(ctx, tx.Settings, t, u.Capacity, u.WarningLevel); err != nil {
				return err
			}
		}
		if update.Recipients != nil {
			if err := notify.SaveRecipients(ctx, tx.Settings, *update.Recipients); err != nil {
				return fmt.Errorf("failed to save recipients: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply configuration update: %w", err)
	}

	s.logger.Info("configuration updated", "thresholds", len(update.Thresholds), "recipients", update.Recipients != nil)
	return s.Config(ctx)
}
