// Package daemon keeps the long-lived background jobs of a node alive.
//
// Key Components:
//
//   - Scheduler: A bounded pool (2 to 8 workers) for long-lived jobs such as
//     the role main loop. Every job occupies its own worker for its lifetime and
//     receives the shared job context. Stop cancels that context and waits for
//     the jobs up to a grace period, jobs still running afterwards are abandoned
//     and reported in a *StragglersError.
//
//   - Trigger: Runs recurring maintenance tasks (store flush, ban refresh) on
//     fixed intervals using a quartz scheduler.
//
//   - Watcher: Observes the configuration file and hands the re-read
//     configuration to a reload callback without restarting the process.
//
// Usage Example:
//
//	s := daemon.NewScheduler(4)
//	_ = s.Start(ctx)
//	_ = s.Submit("maintenance", daemon.NewTrigger(tasks...).Run)
//	_ = s.Submit("config-watcher", daemon.NewWatcher(path, reload).Run)
//	...
//	graceCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	err := s.Stop(graceCtx)
//
// Jobs must return once their context is done. Cancellation is cooperative,
// nothing is interrupted mid-operation.
package daemon
