package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/reugn/go-quartz/job"
	quartzlogger "github.com/reugn/go-quartz/logger"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/atomic"
)

// triggerStopTimeout bounds the wait for a task that is running when the trigger stops
const triggerStopTimeout = 5 * time.Second

// Task is a recurring maintenance task
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Trigger runs a set of Tasks on fixed intervals.
type Trigger struct {
	tasks []Task
	runs  *atomic.Uint64
}

func NewTrigger(tasks ...Task) *Trigger {
	return &Trigger{tasks: tasks, runs: atomic.NewUint64(0)}
}

// Runs returns how many task executions have completed
func (t *Trigger) Runs() uint64 { return t.runs.Load() }

// Run schedules every task and blocks until ctx is done. It is a Job.
func (t *Trigger) Run(ctx context.Context) error {
	if err := t.validate(); err != nil {
		return err
	}

	sched, err := quartz.NewStdScheduler(quartz.WithLogger(quartzlogger.NewSimpleLogger(nil, quartzlogger.LevelOff)))
	if err != nil {
		return fmt.Errorf("failed to create trigger scheduler: %w", err)
	}
	sched.Start(ctx)
	defer func() {
		_ = sched.Clear()
		sched.Stop()
		waitCtx, cancel := context.WithTimeout(context.Background(), triggerStopTimeout)
		defer cancel()
		sched.Wait(waitCtx)
	}()

	for _, task := range t.tasks {
		task := task // per-iteration copy; go.mod targets go 1.21 loop semantics
		fn := job.NewFunctionJob[bool](func(ctx context.Context) (bool, error) {
			err := task.Run(ctx)
			t.runs.Inc()
			if err != nil {
				Logger.Warningf("task %s failed: %v", task.Name, err)
				return false, err
			}
			return true, nil
		})
		detail := quartz.NewJobDetail(fn, quartz.NewJobKey(task.Name))
		if err := sched.ScheduleJob(detail, quartz.NewSimpleTrigger(task.Interval)); err != nil {
			return fmt.Errorf("failed to schedule task %s: %w", task.Name, err)
		}
		Logger.Debugf("task %s runs every %s", task.Name, task.Interval)
	}

	<-ctx.Done()
	return nil
}

func (t *Trigger) validate() error {
	seen := make(map[string]struct{}, len(t.tasks))
	for _, task := range t.tasks {
		if task.Name == "" || task.Run == nil {
			return fmt.Errorf("task needs a name and a function")
		}
		if task.Interval <= 0 {
			return fmt.Errorf("task %s: interval must be positive, got %s", task.Name, task.Interval)
		}
		if _, dup := seen[task.Name]; dup {
			return fmt.Errorf("task %s is defined twice", task.Name)
		}
		seen[task.Name] = struct{}{}
	}
	return nil
}
