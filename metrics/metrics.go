// Package metrics exposes the process metrics over a dedicated listener in
// Prometheus text format.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
)

// MetricsServer serves /metrics on its own address, separate from the API
// listener so scrapes never compete with request traffic.
type MetricsServer struct {
	prefix string
	srv    *http.Server
}

// New creates a metrics server for addr. An empty addr yields a server that
// is never started; callers gate ListenAndServe on the address themselves.
func New(prefix, addr string) (*MetricsServer, error) {
	if prefix == "" {
		return nil, fmt.Errorf("metrics prefix is required")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		vmetrics.WritePrometheus(w, true)
	})

	return &MetricsServer{
		prefix: prefix,
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving scrapes until Shutdown.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown stops the listener gracefully.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
