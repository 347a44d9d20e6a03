// Package coord decides whether this process owns the shared data or
// depends on a process that already does.
//
// The decision is a single bind attempt on a well-known TCP address. The first
// process to bind becomes the Owner and keeps the listener for the lifecycle
// protocol, every later process gets "address in use" and becomes a
// Subordinate. The role is decided once and never re-evaluated: a Subordinate
// whose Owner disappears reconnects instead of taking over, since two
// Subordinates racing for the port could end up as two Owners.
//
// Usage Example:
//
//	election, err := coord.ElectRole(ctx, "127.0.0.1", coord.DefaultPort)
//	if err != nil {
//	  return err // *coord.FatalError, abort startup
//	}
//	if election.Role == coord.RoleOwner {
//	  owner := lifecycle.NewOwner(election.Listener, lifecycle.OwnerOptions{})
//	  ...
//	}
package coord
