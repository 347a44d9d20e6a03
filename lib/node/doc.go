// Package node ties the coordination core together. A Node opens the
// database, elects its role on the coordination port and runs the
// background jobs on the daemon scheduler:
//
//   - lifecycle-owner or lifecycle-subordinate, the shutdown protocol
//   - data-endpoint, the Owner's store served to remote Subordinates
//   - maintenance, the periodic store flush and cache refreshes
//   - config-watcher, the hot reload of the configuration file
//   - admin, the HTTP status, broadcast and metrics endpoint
//
// Usage:
//
//	n := node.New(node.DefaultConfig())
//	if err := n.Start(ctx); err != nil {
//		// fatal: port unusable, owner unreachable or store unavailable
//	}
//	select {
//	case <-ctx.Done():
//	case <-n.ShutdownRequested():
//	}
//	_ = n.Stop(context.Background())
package node
