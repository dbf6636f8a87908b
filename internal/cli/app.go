package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/illenko/usagewatch/internal/analyzer"
	"github.com/illenko/usagewatch/internal/clock"
	"github.com/illenko/usagewatch/internal/collector"
	"github.com/illenko/usagewatch/internal/config"
	"github.com/illenko/usagewatch/internal/mail"
	"github.com/illenko/usagewatch/internal/metrics"
	"github.com/illenko/usagewatch/internal/monitor"
	"github.com/illenko/usagewatch/internal/notify"
	"github.com/illenko/usagewatch/internal/prometheus"
	"github.com/illenko/usagewatch/internal/scheduler"
	"github.com/illenko/usagewatch/internal/storage"
	"github.com/illenko/usagewatch/internal/thresholds"
)

// app holds the components shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	clock     clock.Clock
	db        *storage.DB
	metrics   *metrics.Recorder
	prom      *prometheus.Client
	disk      *collector.DiskSource
	users     *collector.UsersSource
	collector *collector.Collector
	notifier  *notify.Notifier
	monitor   *monitor.Service
}

func newApp(cfg *config.Config) (*app, error) {
	logger := slog.Default()

	db, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		clock:   clock.Real{},
		db:      db,
		metrics: metrics.New(),
		disk:    collector.NewDiskSource(cfg.Collection.DiskPath),
	}

	if cfg.Collection.Prometheus.URL != "" {
		a.prom, err = prometheus.NewClient(prometheus.Config{
			URL:      cfg.Collection.Prometheus.URL,
			Username: cfg.Collection.Prometheus.Username,
			Password: cfg.Collection.Prometheus.Password,
			Timeout:  cfg.Collection.Prometheus.Timeout,
		})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		a.users = collector.NewUsersSource(a.prom,
			cfg.Collection.Prometheus.UsersQuery,
			cfg.Collection.Prometheus.Users90dQuery,
		)
	} else {
		logger.Warn("user collection disabled: collection.prometheus.url not set")
	}

	src := thresholds.NewSource(cfg.Thresholds, logger)

	a.collector = collector.New(db, src, a.metrics, logger)
	a.notifier = notify.NewNotifier(db, src, newMailer(cfg.SMTP, logger), cfg.Notifications,
		notify.WithRecorder(a.metrics),
		notify.WithLogger(logger),
	)
	a.monitor = monitor.New(db, src, monitor.Config{
		DefaultRecipients: cfg.Notifications.Recipients,
		Recommendations:   analyzer.RecommendationsConfig{},
		Clock:             a.clock,
		Logger:            logger,
	})

	return a, nil
}

func newMailer(cfg config.SMTPConfig, logger *slog.Logger) mail.Provider {
	if !cfg.Enabled() {
		logger.Warn("mail delivery disabled: smtp.host not set, notifications will be logged")
		return mail.NewLogProvider(logger)
	}
	return mail.NewSMTP(mail.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	})
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) sources() []collector.Source {
	sources := []collector.Source{a.disk}
	if a.users != nil {
		sources = append(sources, a.users)
	}
	return sources
}

func (a *app) collectSource(source collector.Source) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := a.collector.Collect(ctx, source, a.clock.Now())
		return err
	}
}

func (a *app) checkNotifications(ctx context.Context) error {
	_, err := a.notifier.EvaluateAndDispatch(ctx, a.clock.Now())
	if errors.Is(err, notify.ErrNoRecipients) {
		return nil
	}
	return err
}

func (a *app) cleanup(ctx context.Context) error {
	deleted, err := a.db.Cleanup(ctx, a.clock.Now(), a.cfg.Storage.Retention)
	if err != nil {
		return err
	}
	a.logger.Info("cleanup complete", "deleted_samples", deleted, "retention", a.cfg.Storage.Retention)
	return nil
}

// scheduler builds the periodic tasks, each instrumented with run metrics.
func (a *app) scheduler() *scheduler.Scheduler {
	tasks := []scheduler.Task{
		{Name: scheduler.TaskCollectDisk, Interval: a.cfg.Collection.DiskInterval, Run: a.collectSource(a.disk)},
	}
	if a.users != nil {
		tasks = append(tasks, scheduler.Task{
			Name:     scheduler.TaskCollectUsers,
			Interval: a.cfg.Collection.UsersInterval,
			Run:      a.collectSource(a.users),
		})
	}
	tasks = append(tasks,
		scheduler.Task{Name: scheduler.TaskCheckNotifications, Interval: a.cfg.Scheduler.CheckInterval, Run: a.checkNotifications},
		scheduler.Task{Name: scheduler.TaskCleanup, Interval: a.cfg.Scheduler.CleanupInterval, Run: a.cleanup},
	)

	for i := range tasks {
		tasks[i].Run = a.metrics.InstrumentTask(tasks[i].Name, tasks[i].Run)
	}

	return scheduler.New(scheduler.Config{
		TaskTimeout: a.cfg.Scheduler.TaskTimeout,
		Clock:       a.clock,
		Logger:      a.logger,
	}, tasks...)
}
