// Package query is the top-level orchestrator for natural-language
// queries.
//
// Process validates the input, consults the result cache, and on a miss
// drives the pipeline stages in order: classify, retrieve, verify,
// synthesize, and for the comprehensive variant assess and
// alternatives. Each query moves through PENDING, PROCESSING and then
// exactly one of COMPLETED or FAILED; terminal states are final.
// Results are cached only on success, and outcome metrics are recorded
// exactly once per Process call on every path.
//
// GetStatus reads the orchestrator's tracking table and reports how far
// through the stage sequence an in-flight query has progressed.
package query
