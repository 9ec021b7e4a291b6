// Package pipeline implements the query processing stages: classify,
// retrieve, verify, synthesize, assess, and alternatives.
//
// Each stage acquires an agent of the required type from the pool,
// invokes it with a typed request, and releases it via a deferred
// lease. Retrieval and synthesis may prefer an external microservice
// client and fall back once to the local agent (or vice versa).
package pipeline
