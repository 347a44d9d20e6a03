// Package lifecycle implements the control channel between the Owner and its
// Subordinates.
//
// The wire format is one ASCII command word per line. The only command defined
// is "exit": sent by the Owner it asks a Subordinate to shut down, sent by a
// Subordinate it announces that the Subordinate is leaving. Readers ignore
// blank lines and unknown words so newer peers can add commands.
//
// Key Components:
//
//   - Owner: Accepts Subordinate connections on the listener won by
//     coord.ElectRole and keeps them in a Registry. Shutdown stops accepting
//     and writes a single exit line to every registered connection.
//
//   - Registry: The set of live connections. It is the only structure mutated
//     by several goroutines (acceptor, connection handlers, broadcaster) and is
//     guarded by one mutex that is never held across a socket write.
//
//   - Subordinate: Holds the single outbound connection to the Owner. An exit
//     from the Owner runs the OnExit callback once, a dropped connection is
//     logged and redialed in rounds with a fixed backoff until the context ends.
//
// Usage Example:
//
//	owner := lifecycle.NewOwner(election.Listener, lifecycle.DefaultOwnerOptions())
//	go owner.Serve(ctx)
//	...
//	owner.Shutdown()
//
//	sub := lifecycle.NewSubordinate(lifecycle.DefaultSubordinateOptions(election.Address))
//	if err := sub.Connect(ctx); err != nil {
//	  return err // *lifecycle.UnreachableError
//	}
//	go sub.Run(ctx)
//	...
//	sub.Close()
package lifecycle
