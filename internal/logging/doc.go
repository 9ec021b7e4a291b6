// Package logging provides structured, context-aware logging for queryd.
//
// It wraps zap with methods that extract correlation fields (request ID,
// query ID, trace context) from a context.Context, and can bridge log
// records into OpenTelemetry via otelzap.
package logging
