// Package events publishes query lifecycle notifications over NATS.
//
// Publishing is fire-and-forget: a failed publish is logged and never
// fails the query that produced it. When events are disabled the
// orchestrator is handed a NoopPublisher instead of a nil.
package events
