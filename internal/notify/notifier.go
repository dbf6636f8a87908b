package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/illenko/usagewatch/internal/analyzer"
	"github.com/illenko/usagewatch/internal/config"
	"github.com/illenko/usagewatch/internal/mail"
	"github.com/illenko/usagewatch/internal/storage"
	"github.com/illenko/usagewatch/internal/thresholds"
	"github.com/illenko/usagewatch/pkg/models"
)

type notifyError string

func (e notifyError) Error() string { return string(e) }

const (
	ErrNoRecipients  = notifyError("no notification recipients configured")
	ErrStateNotSaved = notifyError("notification sent but state was not recorded")
)

// RecipientsKey is the settings key (namespace notifications) holding the
// JSON list of recipients that overrides the config file.
const RecipientsKey = "recipients"

// Recorder observes dispatch outcomes.
type Recorder interface {
	NotificationSent(t models.MetricType, severity models.Severity)
	NotificationFailed()
}

type nopRecorder struct{}

func (nopRecorder) NotificationSent(models.MetricType, models.Severity) {}
func (nopRecorder) NotificationFailed()                                 {}

type Notifier struct {
	db         *storage.DB
	thresholds *thresholds.Source
	policy     *Policy
	mailer     mail.Provider
	cfg        config.NotificationsConfig
	loc        *time.Location
	recorder   Recorder
	logger     *slog.Logger
}

type Option func(*Notifier)

func WithRecorder(r Recorder) Option {
	return func(n *Notifier) {
		if r != nil {
			n.recorder = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

func NewNotifier(db *storage.DB, src *thresholds.Source, mailer mail.Provider, cfg config.NotificationsConfig, opts ...Option) *Notifier {
	loc := cfg.Location()
	n := &Notifier{
		db:         db,
		thresholds: src,
		policy:     NewPolicy(loc),
		mailer:     mailer,
		cfg:        cfg,
		loc:        loc,
		recorder:   nopRecorder{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// EvaluateAndDispatch evaluates every metric against its latest sample and
// sends one combined message for those that pass the policy gates. State is
// only advanced after the mail provider accepted the message.
func (n *Notifier) EvaluateAndDispatch(ctx context.Context, now time.Time) (models.DispatchResult, error) {
	result := models.DispatchResult{Types: []models.MetricType{}}

	alerts := n.collectAlerts(ctx, now)
	if len(alerts) == 0 {
		n.logger.Debug("no metrics require notification")
		return result, nil
	}

	recipients, err := n.Recipients(ctx)
	if err != nil {
		return result, err
	}
	if len(recipients) == 0 {
		n.logger.Warn("alerts pending but no recipients configured", "alerts", len(alerts))
		return result, ErrNoRecipients
	}

	msg, err := render(n.cfg.SiteName, n.cfg.SubjectPrefix, alerts, now, n.loc)
	if err != nil {
		return result, err
	}

	if err := n.mailer.Send(ctx, mail.Message{
		To:       recipients,
		Subject:  msg.Subject,
		HTMLBody: msg.HTML,
		TextBody: msg.Text,
	}); err != nil {
		n.recorder.NotificationFailed()
		n.logger.Error("failed to send notification", "alerts", len(alerts), "error", err)
		return result, fmt.Errorf("failed to send notification: %w", err)
	}

	result.Sent = true
	for _, a := range alerts {
		result.Types = append(result.Types, a.MetricType)
		n.recorder.NotificationSent(a.MetricType, a.Severity)
	}

	err = n.db.InTx(ctx, func(tx *storage.Tx) error {
		for _, a := range alerts {
			if err := RecordNotified(ctx, tx.Settings, a.MetricType, now); err != nil {
				return err
			}
			if _, err := tx.Samples.Insert(ctx, &models.MetricSample{
				Type:       a.MetricType,
				Timestamp:  now.Unix(),
				Value:      a.Value,
				Threshold:  a.Capacity,
				Percentage: a.Percentage,
				Notified:   true,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		n.logger.Error("failed to record notification state", "error", err)
		return result, fmt.Errorf("%w: %w", ErrStateNotSaved, err)
	}

	n.logger.Info("notification sent", "types", result.Types, "recipients", len(recipients))
	return result, nil
}

// collectAlerts evaluates each metric independently. A metric whose inputs
// cannot be read is skipped so the others still notify.
func (n *Notifier) collectAlerts(ctx context.Context, now time.Time) []models.Alert {
	settings := n.db.Settings()
	samples := n.db.Samples()

	var alerts []models.Alert
	for _, t := range models.AllMetrics {
		logger := n.logger.With("type", t)

		cfg, err := n.thresholds.Load(ctx, settings, t)
		if err != nil {
			logger.Warn("skipping metric, thresholds unavailable", "error", err)
			continue
		}
		if !cfg.Enabled() {
			continue
		}

		latest, err := samples.Latest(ctx, t)
		if err != nil {
			logger.Warn("skipping metric, latest sample unavailable", "error", err)
			continue
		}
		if latest == nil {
			continue
		}

		pct, status := analyzer.Evaluate(latest.Value, cfg.Capacity, cfg.WarningLevel)

		last, err := LastNotified(ctx, settings, t)
		if err != nil {
			logger.Warn("skipping metric, notification state unavailable", "error", err)
			continue
		}
		if !n.policy.ShouldNotify(t, pct, cfg.WarningLevel, last, now) {
			continue
		}

		history, err := settings.GrowthHistory(ctx, t)
		if err != nil {
			logger.Warn("growth history unavailable", "error", err)
		}
		growth := analyzer.GrowthRate(history)

		alerts = append(alerts, newAlert(t, status, pct, latest.Value, cfg.Capacity, growth))
	}
	return alerts
}

func newAlert(t models.MetricType, status models.Status, pct, value, capacity, growth float64) models.Alert {
	severity := models.SeverityWarning
	if status == models.StatusCritical {
		severity = models.SeverityCritical
	}

	return models.Alert{
		MetricType: t,
		Severity:   severity,
		Message: fmt.Sprintf("%s is at %.1f%% of capacity (%s of %s)",
			t.Label(), pct, analyzer.FormatValue(t, value), analyzer.FormatValue(t, capacity)),
		Percentage:      pct,
		Value:           value,
		Capacity:        capacity,
		GrowthRate:      growth,
		DaysToThreshold: analyzer.DaysToThreshold(value, analyzer.ProjectionTarget(capacity), growth),
	}
}

// Recipients returns the stored recipient list, or the config file list when
// none is stored.
func (n *Notifier) Recipients(ctx context.Context) ([]string, error) {
	return LoadRecipients(ctx, n.db.Settings(), n.cfg.Recipients)
}

func LoadRecipients(ctx context.Context, settings *storage.SettingsRepository, defaults []string) ([]string, error) {
	raw, ok, err := settings.Get(ctx, storage.NamespaceNotifications, RecipientsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipients: %w", err)
	}
	if !ok {
		return defaults, nil
	}
	var recipients []string
	if err := json.Unmarshal([]byte(raw), &recipients); err != nil {
		slog.Warn("ignoring malformed recipients setting", "error", err)
		return defaults, nil
	}
	return recipients, nil
}

func SaveRecipients(ctx context.Context, settings *storage.SettingsRepository, recipients []string) error {
	if recipients == nil {
		recipients = []string{}
	}
	b, err := json.Marshal(recipients)
	if err != nil {
		return err
	}
	return settings.Set(ctx, storage.NamespaceNotifications, RecipientsKey, string(b))
}
