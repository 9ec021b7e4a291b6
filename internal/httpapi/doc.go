// Package httpapi provides the HTTP API for queryd.
//
// It exposes query submission for both pipeline variants, status
// lookup, a health endpoint reporting pool and cache occupancy, and
// the Prometheus /metrics endpoint. Requests are rate limited per
// client IP.
package httpapi
