// Package agent defines the agent model for queryd.
//
// An agent is a capability-providing worker (retrieval, synthesis,
// fact-check) leased from the pool for one pipeline stage invocation.
// Each agent type implements a set of capability interfaces; stages
// issue strongly typed requests through those interfaces rather than
// dispatching on task-name strings.
package agent
