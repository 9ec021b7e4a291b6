// Package pool owns all live agent instances, grouped by type, and is
// the single place authorized to create and destroy them.
//
// Agents are handed out as leases: Acquire returns a *Lease whose
// Release is idempotent and safe to defer, so a failing stage can never
// leak a busy agent. A background cleanup sweep reclaims agents in the
// error state and agents idle past a configurable threshold.
package pool
