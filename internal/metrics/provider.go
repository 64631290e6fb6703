package metrics

import (
	drovermetrics "github.com/drover-labs/drover/pkg/drover/v1/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRegistryProvider implements the RegistryProvider interface
// using a standard Prometheus registry.
type PrometheusRegistryProvider struct {
	registry *prometheus.Registry
}

// NewPrometheusRegistryProvider creates a new metrics provider backed by Prometheus.
func NewPrometheusRegistryProvider() *PrometheusRegistryProvider {
	return &PrometheusRegistryProvider{
		registry: prometheus.NewRegistry(),
	}
}

// Registry returns the underlying Prometheus registry.
func (p *PrometheusRegistryProvider) Registry() *prometheus.Registry {
	return p.registry
}

var _ drovermetrics.RegistryProvider = (*PrometheusRegistryProvider)(nil)
