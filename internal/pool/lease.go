package pool

import (
	"sync/atomic"

	"github.com/kestrelworks/queryd/internal/agent"
)

// Lease is the exclusive assignment of one agent to one in-flight
// stage call.
//
// Release and MarkError are terminal and idempotent: the first call
// settles the lease, later calls are no-ops. Callers defer Release
// immediately after Acquire so the agent returns to the pool on every
// exit path.
type Lease struct {
	c       *Coordinator
	agent   *agent.Agent
	settled atomic.Bool
}

// Agent returns the leased agent. The caller may read its metadata and
// invoke its worker, but must not mutate status fields.
func (l *Lease) Agent() *agent.Agent {
	return l.agent
}

// Worker returns the capability implementation backing the lease.
func (l *Lease) Worker() agent.Worker {
	return l.agent.Worker
}

// Release returns the agent to the idle pool. Safe to call after
// MarkError; the first settlement wins.
func (l *Lease) Release() {
	if l == nil || !l.settled.CompareAndSwap(false, true) {
		return
	}
	l.c.release(l.agent)
}

// MarkError transitions the leased agent to the error state so the
// pool reclaims it on the next sweep.
func (l *Lease) MarkError(reason string) {
	if l == nil || !l.settled.CompareAndSwap(false, true) {
		return
	}
	l.c.markError(l.agent, reason)
}
