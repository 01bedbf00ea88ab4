package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc is one scheduled unit of work.
type JobFunc func(ctx context.Context) error

// Scheduler runs named jobs on cron schedules in UTC.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu   sync.Mutex
	jobs map[string]JobFunc
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		jobs:   make(map[string]JobFunc),
	}
}

// Add registers fn under name. An empty schedule leaves the job disabled.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	if fn == nil {
		return fmt.Errorf("job %s: nil function", name)
	}
	if spec == "" {
		s.logger.Info("job disabled", zap.String("job", name))
		return nil
	}
	s.mu.Lock()
	if _, dup := s.jobs[name]; dup {
		s.mu.Unlock()
		return fmt.Errorf("job %s already registered", name)
	}
	s.jobs[name] = fn
	s.mu.Unlock()

	_, err := s.cron.AddFunc(spec, func() {
		if err := s.Trigger(name); err != nil {
			s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	})
	if err != nil {
		s.mu.Lock()
		delete(s.jobs, name)
		s.mu.Unlock()
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, spec, err)
	}
	s.logger.Info("job scheduled", zap.String("job", name), zap.String("schedule", spec))
	return nil
}

// Trigger runs a registered job immediately on the caller's goroutine.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	fn, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	start := time.Now()
	err := fn(s.ctx)
	s.logger.Info("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)), zap.Error(err))
	return err
}

func (s *Scheduler) Start() {
	if !s.IsRunning() {
		s.logger.Warn("no jobs registered, scheduler idle")
		return
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
