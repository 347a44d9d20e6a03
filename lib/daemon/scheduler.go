package daemon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/project-dy/Essentials/lib/logger"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("daemon")

const (
	MinWorkers = 2
	MaxWorkers = 8
)

var (
	// ErrPoolExhausted is returned by Submit when every worker is busy
	ErrPoolExhausted = errors.New("all workers are busy")

	// ErrNotRunning is returned by Submit before Start and after Stop
	ErrNotRunning = errors.New("scheduler is not running")
)

// Job is a long-lived task. It runs until ctx is done.
type Job func(ctx context.Context) error

// StragglersError names the jobs that did not return within the grace period
type StragglersError struct {
	Jobs []string
}

func (e *StragglersError) Error() string {
	return fmt.Sprintf("abandoned %d jobs after grace period: %s", len(e.Jobs), strings.Join(e.Jobs, ", "))
}

type schedulerState int

const (
	stateIdle schedulerState = iota
	stateRunning
	stateStopped
)

// Scheduler runs jobs on a bounded number of workers.
type Scheduler struct {
	workers int

	mu      sync.Mutex
	state   schedulerState
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	running map[string]int
	errs    error
}

// NewScheduler creates a scheduler with workers clamped to [MinWorkers, MaxWorkers]
func NewScheduler(workers int) *Scheduler {
	return &Scheduler{
		workers: min(max(workers, MinWorkers), MaxWorkers),
		running: make(map[string]int),
	}
}

// Workers returns the size of the pool
func (s *Scheduler) Workers() int { return s.workers }

// Start makes the scheduler accept jobs. Jobs get a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateIdle {
		return fmt.Errorf("scheduler can only be started once")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.group = new(errgroup.Group)
	s.group.SetLimit(s.workers)
	s.state = stateRunning

	Logger.Debugf("scheduler started with %d workers", s.workers)
	return nil
}

// Submit runs job on a free worker. It never waits for one to become free.
func (s *Scheduler) Submit(name string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateRunning {
		return ErrNotRunning
	}

	s.running[name]++
	ok := s.group.TryGo(func() error {
		defer s.finished(name)

		Logger.Debugf("job %s started", name)
		err := job(s.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			Logger.Errorf("job %s failed: %v", name, err)
			s.mu.Lock()
			s.errs = multierr.Append(s.errs, fmt.Errorf("job %s: %w", name, err))
			s.mu.Unlock()
			return nil
		}
		Logger.Debugf("job %s finished", name)
		return nil
	})
	if !ok {
		s.running[name]--
		if s.running[name] == 0 {
			delete(s.running, name)
		}
		return fmt.Errorf("cannot run %s: %w", name, ErrPoolExhausted)
	}
	return nil
}

// Running returns the names of the jobs currently running, sorted
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.running))
	for name, n := range s.running {
		for i := 0; i < n; i++ {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Stop cancels the job context and waits until every job returned or ctx is
// done. The errors of failed jobs are combined in the result. Jobs still
// running when ctx ends are left behind and reported as *StragglersError.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateRunning {
		s.state = stateStopped
		s.mu.Unlock()
		return nil
	}
	s.state = stateStopped
	group := s.group
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.mu.Lock()
		defer s.mu.Unlock()
		Logger.Debugf("scheduler stopped")
		return s.errs
	case <-ctx.Done():
		stragglers := s.Running()
		Logger.Warningf("abandoning jobs still running after grace period: %s", strings.Join(stragglers, ", "))
		s.mu.Lock()
		defer s.mu.Unlock()
		return multierr.Append(s.errs, &StragglersError{Jobs: stragglers})
	}
}

func (s *Scheduler) finished(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running[name]--
	if s.running[name] <= 0 {
		delete(s.running, name)
	}
}
