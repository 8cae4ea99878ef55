// Package metrics exposes Prometheus-format counters for the sync core and
// a standalone metrics listener for the service binaries.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	vm "github.com/VictoriaMetrics/metrics"
)

// MetricsServer serves the process metrics on a dedicated address.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given namespace and listen address.
// An empty address returns a server whose ListenAndServe is a no-op, so
// callers don't need to special-case a disabled metrics endpoint.
func New(namespace, addr string) (*MetricsServer, error) {
	if namespace == "" {
		return nil, fmt.Errorf("metrics namespace must not be empty")
	}

	m := &MetricsServer{}
	if addr == "" {
		return m, nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		vm.WritePrometheus(w, true)
	})

	m.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return m, nil
}

// ListenAndServe blocks serving the metrics endpoint.
func (m *MetricsServer) ListenAndServe() error {
	if m.srv == nil {
		return nil
	}
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}

// IncStepResult counts one orchestrator step, labeled by agent role
// ("leader" or "member") and the step result.
func IncStepResult(role, result string) {
	vm.GetOrCreateCounter(fmt.Sprintf(`allysync_steps_total{role=%q,result=%q}`, role, result)).Inc()
}

// IncKeyRotation counts an applied key-expiry transition.
func IncKeyRotation() {
	vm.GetOrCreateCounter(`allysync_key_rotations_total`).Inc()
}

// IncTickAdvance counts substrate tick advancements.
func IncTickAdvance() {
	vm.GetOrCreateCounter(`allysync_ticks_total`).Inc()
}
