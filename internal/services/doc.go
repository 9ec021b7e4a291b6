// Package services provides the centralized service registry for
// queryd.
//
// Registry pattern for accessing the core services (cache, agent pool,
// query orchestrator, knowledge store, event publisher). Use
// NewRegistry() to create a registry with service instances, then
// accessor methods to retrieve individual services. Nothing in queryd
// is a global singleton; everything is constructed in cmd/queryd and
// passed down through this registry.
package services
