// Package scheduler implements C7: the cooperative periodic-task loop
// of spec §4.7 — escrow auto-release, limit resets, wallet
// reconciliation, and webhook retry — each gated by a named lock so
// only one node runs it at a time.
package scheduler

import "context"

// Locker is the per-task-name advisory lock of spec §4.7, satisfied in
// production by go-redsync/redsync/v4 against the shared Redis
// deployment (internal/adapters/redis) so a multi-node deployment
// never double-runs a task.
type Locker interface {
	// TryLock attempts to acquire the named lock, returning ok=false
	// (not an error) if another node currently holds it.
	TryLock(ctx context.Context, name string) (unlock func(context.Context) error, ok bool, err error)
}
