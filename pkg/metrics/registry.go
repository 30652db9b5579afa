// Package metrics provides Prometheus metrics collection for ajpd components.
//
// All metrics are optional - if not initialized, components use no-op
// implementations so the server runs the same with or without collection.
//
// Usage:
//
//	// Initialize global registry (typically in the start command)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	ajpMetrics := prometheus.NewAJPMetrics()
//
//	// Or use nil for no-op behavior
//	adapter := ajp.New(config, handler, nil)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is the global Prometheus registry for all ajpd metrics.
	// Protected by registryOnce for write-once, read-many access.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// Safe to call multiple times - subsequent calls are ignored. The registry
// also carries the Go runtime and process collectors.
//
// Thread safety:
// sync.Once provides the memory barrier that makes the registry visible to
// all subsequent GetRegistry calls.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global Prometheus registry, or nil when
// InitRegistry has not been called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if metrics collection is enabled.
func IsEnabled() bool {
	return GetRegistry() != nil
}
