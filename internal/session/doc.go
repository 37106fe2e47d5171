// Package session implements the per-connection lifecycle state machine and
// the bounded registry of concurrent sessions.
//
// # State Machine
//
// Each session moves through a small set of states:
//
//	PendingCredential -> Authenticated -> Ready -> Disconnected -> (restart) -> PendingCredential
//
// Failed is absorbing: a fatal credential failure (for example the account
// being logged out on the phone) parks the session until an operator calls
// Restart, which stands in for a fresh credential exchange.
//
// Credential challenges self-loop in PendingCredential and increment a retry
// counter; past the configured maximum the session destroys its adapter and
// restarts with the counter reset. Connection loss from Ready schedules an
// automatic restart after a delay unless the session was explicitly stopped.
//
// # Event Loop
//
// All state transitions happen on one goroutine per session. Adapter events
// and external commands (stop, restart) funnel into the same loop, so there is
// a single transition table and no re-entrant state mutation. Public methods
// only read state snapshots or enqueue commands.
//
// # Registry
//
// The Registry owns the collection of live sessions:
//
//	reg := session.NewRegistry(factory, pipe, active, cfg, maxSessions, onChallenge, logger)
//	sess, err := reg.Create(ctx, "primary")
//
// Create is idempotent per id and fails with ErrCapacityExceeded at the
// configured maximum. Destroy never fails visibly: the in-memory entry is
// always removed and artifact cleanup is best effort. Shutdown destroys all
// sessions concurrently.
package session
