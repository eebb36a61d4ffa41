package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/infra/metrics"
)

const defaultJobTimeout = 5 * time.Minute

// Trigger yields the next run time after now.
type Trigger interface {
	Next(now time.Time) time.Time
}

// Every fires at a fixed interval.
type Every struct {
	Interval time.Duration
}

func (e Every) Next(now time.Time) time.Time {
	if e.Interval <= 0 {
		return now.Add(time.Minute)
	}
	return now.Add(e.Interval)
}

// Daily fires once a day at Hour:Minute in Loc.
type Daily struct {
	Hour, Minute int
	Loc          *time.Location
}

func (d Daily) Next(now time.Time) time.Time {
	loc := d.Loc
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Job is one periodic task. RunAtStart runs it once before the first trigger.
type Job struct {
	Name       string
	Trigger    Trigger
	RunAtStart bool
	Timeout    time.Duration
	Fn         func(ctx context.Context) error
}

// Scheduler runs every registered job in its own goroutine.
type Scheduler struct {
	mu     sync.Mutex
	jobs   []Job
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
	log    *zerolog.Logger
}

func NewScheduler(logger *zerolog.Logger) *Scheduler {
	l := logger.With().Str("component", "scheduler").Logger()
	return &Scheduler{now: time.Now, log: &l}
}

// Add registers jobs; it has no effect after Start.
func (s *Scheduler) Add(jobs ...Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	s.jobs = append(s.jobs, jobs...)
}

// Start launches the job loops. Calling it twice has no effect.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Stop cancels all loops and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()
	if j.RunAtStart {
		s.run(ctx, j)
	}
	for {
		now := s.now()
		timer := time.NewTimer(j.Trigger.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.run(ctx, j)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j Job) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return j.Fn(runCtx)
	}()
	metrics.ObserveJob(j.Name, started, err)
	if err != nil {
		s.log.Error().Err(err).Str("job", j.Name).Msg("job failed")
	}
}
