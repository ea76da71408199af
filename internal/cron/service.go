// Package cron runs the gateway's periodic maintenance jobs, such as
// re-validating catalog credentials that could not be validated at startup.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// JobState is the last observed outcome of a job.
type JobState struct {
	Name       string    `json:"name" yaml:"name"`
	Expr       string    `json:"expr" yaml:"expr"`
	NextRunAt  time.Time `json:"nextRunAt" yaml:"nextRunAt"`
	LastRunAt  time.Time `json:"lastRunAt,omitzero" yaml:"lastRunAt,omitempty"`
	LastStatus string    `json:"lastStatus,omitempty" yaml:"lastStatus,omitempty"`
	LastError  string    `json:"lastError,omitempty" yaml:"lastError,omitempty"`
	Runs       int       `json:"runs" yaml:"runs"`
}

type job struct {
	state JobState
	sched robfigcron.Schedule
	run   JobFunc
}

// Service schedules jobs on robfig/cron. Jobs must be added before Start.
type Service struct {
	mu     sync.Mutex
	jobs   map[string]*job
	robfig *robfigcron.Cron
	parser robfigcron.Parser
}

func NewService() *Service {
	return &Service{
		jobs:   make(map[string]*job),
		robfig: robfigcron.New(),
		parser: robfigcron.NewParser(
			robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow | robfigcron.Descriptor,
		),
	}
}

// AddJob registers fn under name. expr is a five-field cron expression or a
// descriptor such as "@every 5m". tz is an optional IANA zone.
func (s *Service) AddJob(name, expr, tz string, fn JobFunc) error {
	sched, err := s.parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("cron: invalid expression %q for job %s: %w", expr, name, err)
	}
	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("cron: unknown timezone %q: %w", tz, err)
		}
		sched = withLocation(sched, loc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("cron: job %s already registered", name)
	}
	s.jobs[name] = &job{
		state: JobState{Name: name, Expr: expr, NextRunAt: sched.Next(time.Now())},
		sched: sched,
		run:   fn,
	}
	return nil
}

// Start arms every registered job. Blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	for name, j := range s.jobs {
		s.robfig.Schedule(j.sched, robfigcron.FuncJob(func() { _ = s.execute(ctx, name) }))
	}
	count := len(s.jobs)
	s.mu.Unlock()

	s.robfig.Start()
	slog.Info("cron: started", "jobs", count)

	<-ctx.Done()

	<-s.robfig.Stop().Done()
	return ctx.Err()
}

// RunNow executes the named job synchronously, outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron: unknown job %s", name)
	}
	return s.execute(ctx, name)
}

func (s *Service) execute(ctx context.Context, name string) error {
	s.mu.Lock()
	j := s.jobs[name]
	s.mu.Unlock()

	start := time.Now()
	err := j.run(ctx)

	s.mu.Lock()
	j.state.Runs++
	j.state.LastRunAt = start
	j.state.LastStatus = "ok"
	j.state.LastError = ""
	if err != nil {
		j.state.LastStatus = "error"
		j.state.LastError = err.Error()
	}
	j.state.NextRunAt = j.sched.Next(time.Now())
	s.mu.Unlock()

	if err != nil {
		slog.Warn("cron: job failed", "job", name, "err", err)
	} else {
		slog.Debug("cron: job ok", "job", name, "took", time.Since(start))
	}
	return err
}

// Jobs returns a snapshot of every job's state, sorted by name.
func (s *Service) Jobs() []JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobState, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.state)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// locSchedule wraps a Schedule to always use a specific location.
type locSchedule struct {
	inner robfigcron.Schedule
	loc   *time.Location
}

func (l locSchedule) Next(t time.Time) time.Time {
	return l.inner.Next(t.In(l.loc))
}

func withLocation(s robfigcron.Schedule, loc *time.Location) robfigcron.Schedule {
	return locSchedule{inner: s, loc: loc}
}
