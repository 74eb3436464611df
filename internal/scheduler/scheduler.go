// Package scheduler triggers crawl runs on an hourly and a daily schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/IshaanNene/hotboard/internal/config"
)

// Job is the work run on every tick.
type Job func(ctx context.Context)

// Entry describes one scheduled trigger.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// Scheduler owns a cron instance. Overlapping runs are not prevented.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	location *time.Location
	entries  map[string]cron.EntryID
	specs    map[string]string
	job      Job
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
}

// New builds a scheduler from config. An empty hourly spec disables the
// hourly trigger; an empty daily time disables the daily one.
func New(cfg config.SchedulerConfig, job Job, logger *slog.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("job must not be nil")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		location: loc,
		entries:  make(map[string]cron.EntryID),
		specs:    make(map[string]string),
		job:      job,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}

	if cfg.Hourly != "" {
		if err := s.add("hourly", cfg.Hourly); err != nil {
			cancel()
			return nil, err
		}
	}
	if cfg.DailyAt != "" {
		hour, minute, err := config.ParseClock(cfg.DailyAt)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("daily_at: %w", err)
		}
		if err := s.add("daily", fmt.Sprintf("%d %d * * *", minute, hour)); err != nil {
			cancel()
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name, spec string) error {
	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		s.logger.Info("scheduled crawl starting", "trigger", name)
		s.job(s.ctx)
		s.logger.Info("scheduled crawl finished", "trigger", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("add %s schedule %q: %w", name, spec, err)
	}
	s.mu.Lock()
	s.entries[name] = id
	s.specs[name] = spec
	s.mu.Unlock()
	return nil
}

// Start begins cron execution in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.Entries() {
		s.logger.Info("schedule registered", "trigger", e.Name, "spec", e.Spec, "next", e.Next)
	}
}

// Stop halts new triggers and waits for a running job. If ctx ends first the
// job's context is cancelled and Stop keeps waiting for it to return.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("cancelling running crawl")
		s.cancel()
		<-done.Done()
	}
	s.cancel()
}

// Entries lists the registered triggers with their next run time.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, name := range []string{"hourly", "daily"} {
		id, ok := s.entries[name]
		if !ok {
			continue
		}
		out = append(out, Entry{Name: name, Spec: s.specs[name], Next: s.cron.Entry(id).Next})
	}
	return out
}

// Location returns the scheduler time zone.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

// cronLogger routes cron's logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
