// Package cache provides the in-memory result cache for queryd.
//
// Entries carry a per-entry TTL; reads past expiry are treated as
// absent and lazily evicted, and a background sweep purges the rest.
// Concurrent misses on the same key may each recompute and overwrite
// the result; last-writer-wins is acceptable for query results.
package cache
