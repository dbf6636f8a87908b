package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/illenko/usagewatch/internal/clock"
)

// Task names used by the service.
const (
	TaskCollectDisk        = "collect_disk"
	TaskCollectUsers       = "collect_users"
	TaskCheckNotifications = "check_notifications"
	TaskCleanup            = "cleanup"
)

type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type TaskStatus struct {
	Name         string    `json:"name"`
	Interval     string    `json:"interval"`
	Running      bool      `json:"running"`
	Runs         int       `json:"runs"`
	LastRunAt    time.Time `json:"last_run_at,omitempty"`
	LastDuration string    `json:"last_duration,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	NextRunAt    time.Time `json:"next_run_at,omitempty"`
}

type task struct {
	Task
	status TaskStatus
}

// Scheduler runs each task on its own ticker. A task never overlaps with
// itself; different tasks may run at the same time.
type Scheduler struct {
	tasks   map[string]*task
	order   []string
	timeout time.Duration
	clock   clock.Clock
	logger  *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
}

type Config struct {
	TaskTimeout time.Duration
	Clock       clock.Clock
	Logger      *slog.Logger
}

func New(cfg Config, tasks ...Task) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Scheduler{
		tasks:   make(map[string]*task, len(tasks)),
		timeout: cfg.TaskTimeout,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		stopCh:  make(chan struct{}),
	}
	for _, t := range tasks {
		s.tasks[t.Name] = &task{
			Task:   t,
			status: TaskStatus{Name: t.Name, Interval: t.Interval.String()},
		}
		s.order = append(s.order, t.Name)
	}
	return s
}

// Start runs every task once and then on its interval. It blocks until ctx
// is cancelled or Stop is called, then waits for running tasks to return.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info("starting scheduler", "tasks", len(s.order))

	for _, name := range s.order {
		t := s.tasks[name]
		if t.Interval <= 0 {
			s.logger.Warn("task has no interval, not scheduling", "task", name)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, t)
		}()
	}

	select {
	case <-ctx.Done():
	case <-s.stopCh:
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, t *task) {
	_ = s.run(ctx, t)

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		t.status.NextRunAt = s.clock.Now().Add(t.Interval)
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.run(ctx, t)
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// RunNow runs the named task synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.run(ctx, t)
}

// RunAll runs every task once, in registration order, and joins their errors.
func (s *Scheduler) RunAll(ctx context.Context) error {
	var errs error
	for _, name := range s.order {
		if err := s.run(ctx, s.tasks[name]); err != nil {
			errs = errors.Join(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs
}

func (s *Scheduler) Status() []TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TaskStatus, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tasks[name].status)
	}
	return out
}

func (s *Scheduler) run(ctx context.Context, t *task) (err error) {
	s.mu.Lock()
	if t.status.Running {
		s.mu.Unlock()
		return ErrTaskAlreadyRunning
	}
	t.status.Running = true
	s.mu.Unlock()

	logger := s.logger.With("task", t.Name)
	start := s.clock.Now()
	began := time.Now()
	logger.Debug("task started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}

		s.mu.Lock()
		t.status.Running = false
		t.status.Runs++
		t.status.LastRunAt = start
		t.status.LastDuration = time.Since(began).String()
		t.status.LastError = ""
		if err != nil {
			t.status.LastError = err.Error()
		}
		s.mu.Unlock()

		if err != nil {
			logger.Error("task failed", "error", err, "duration", time.Since(began))
		} else {
			logger.Debug("task complete", "duration", time.Since(began))
		}
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	return t.Run(ctx)
}

type schedulerError string

func (e schedulerError) Error() string { return string(e) }

const (
	ErrTaskAlreadyRunning = schedulerError("task already running")
	ErrUnknownTask        = schedulerError("unknown task")
)
