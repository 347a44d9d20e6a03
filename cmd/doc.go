// Package cmd implements the command-line interface of Essentials. It provides
// a hierarchical command structure for running a node and for inspecting a
// running one.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a node (owner or subordinate, decided on the coordination port)
//   - player: Reads and edits the shared database through the owner's data endpoint
//   - admin: Status and shutdown broadcast through a node's admin endpoint
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See essentials -help for a list of all commands.
package cmd
