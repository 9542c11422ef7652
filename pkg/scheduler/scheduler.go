package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	applogger "QuantLens/pkg/logger"
)

// Task is one scheduled unit of work.
type Task func(ctx context.Context) error

type Option func(*Scheduler)

// WithTimeout bounds each task run.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithLocation sets the time zone cron specs are evaluated in. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// Entry describes a registered task.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

type entry struct {
	id   cron.EntryID
	spec string
	task Task
}

// Scheduler runs named tasks on standard five-field cron specs. A task that
// is still running when its next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	l       *applogger.Logger
	timeout time.Duration
	loc     *time.Location

	mu      sync.Mutex
	entries map[string]entry
}

func New(l *applogger.Logger, opts ...Option) *Scheduler {
	if l == nil {
		l = applogger.Nop()
	}
	s := &Scheduler{
		l:       l.With("scheduler"),
		timeout: 30 * time.Minute,
		loc:     time.UTC,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cronLogger{s.l}), cron.SkipIfStillRunning(cronLogger{s.l})),
	)
	return s
}

// Add registers task under name. Names are unique.
func (s *Scheduler) Add(name, spec string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("scheduler: task %q already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, task) })
	if err != nil {
		return fmt.Errorf("scheduler: task %q: %w", name, err)
	}
	s.entries[name] = entry{id: id, spec: spec, task: task}
	return nil
}

// Remove unregisters a task. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		s.cron.Remove(e.id)
		delete(s.entries, name)
	}
}

// RunNow runs a registered task synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown task %q", name)
	}
	return s.run(name, e.task)
}

func (s *Scheduler) run(name string, task Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	s.l.Info("scheduled task started", applogger.String("task", name))
	if err := task(ctx); err != nil {
		s.l.Error("scheduled task failed",
			applogger.String("task", name),
			applogger.Duration("duration", time.Since(start)),
			applogger.Error(err),
		)
		return err
	}
	s.l.Info("scheduled task completed",
		applogger.String("task", name),
		applogger.Duration("duration", time.Since(start)),
	)
	return nil
}

// Entries lists the registered tasks sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for name, e := range s.entries {
		ce := s.cron.Entry(e.id)
		out = append(out, Entry{Name: name, Spec: e.spec, Next: ce.Next, Prev: ce.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.l.Info("scheduler started", applogger.Int("tasks", len(s.Entries())))
}

// Stop stops firing new runs and waits for running tasks until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.l.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the app logger to cron.Logger.
type cronLogger struct{ l *applogger.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, applogger.Any("kv", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, applogger.Error(err), applogger.Any("kv", keysAndValues))
}
