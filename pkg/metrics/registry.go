// Package metrics holds the process-wide Prometheus registry and the
// BFS-specific collectors registered against it.
//
// Collectors are constructed lazily and return nil when metrics are
// disabled (the "NewXMetrics returns nil if not enabled" contract seen
// throughout the codebase this was adapted from); every method on a nil
// collector is a no-op, so callers need no nil check.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection for the process, creating a
// fresh Prometheus registry. Calling it more than once replaces the
// registry; existing collectors constructed against the old one keep
// recording into it but are no longer exposed.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return registry != nil
}

// GetRegistry returns the process registry, or nil if metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}
