package v1

import (
	"context"
	"time"

	"github.com/drover-labs/drover/internal/config"
	"github.com/drover-labs/drover/internal/facts"
	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
	"github.com/drover-labs/drover/pkg/drover/v1/events"
	"github.com/drover-labs/drover/pkg/drover/v1/executor"
	"github.com/drover-labs/drover/pkg/drover/v1/inventory"
	"github.com/drover-labs/drover/pkg/drover/v1/lookup"
	"github.com/drover-labs/drover/pkg/drover/v1/metrics"
	"github.com/drover-labs/drover/pkg/drover/v1/stats"
	"github.com/drover-labs/drover/pkg/drover/v1/template"
	"github.com/drover-labs/drover/pkg/drover/v1/tracing"
)

// EngineV1 defines the public interface for the drover playbook engine.
type EngineV1 interface {
	// Run drives every play in the loaded playbook to completion and returns
	// a per-host outcome summary derived from the stats aggregator. The run
	// stops at the first play that aborts; stats accumulated up to that
	// point are still summarized.
	Run(ctx context.Context) (map[string]stats.Summary, error)

	// MetricsRegistryProvider returns the underlying metrics provider.
	MetricsRegistryProvider() metrics.RegistryProvider
	// TracerProvider returns the underlying tracing provider.
	TracerProvider() tracing.TracerProvider

	// Setter methods for configuring engine collaborators programmatically.
	SetInventory(inv inventory.Inventory) error
	SetHostListPath(path string) error
	SetExecutor(ex executor.Executor) error
	SetEventBus(bus events.Bus) error
	SetStats(agg *stats.Aggregator) error
	SetFactCache(cache *facts.Cache) error
	SetRenderer(r template.Renderer) error
	SetLookupRegistry(reg lookup.Registry) error
	SetVarsResolver(r VarsResolver) error
	SetMetricsRegistryProvider(p metrics.RegistryProvider) error
	SetTracerProvider(p tracing.TracerProvider) error
	SetOnlyTags(tags []string) error
	SetExtraVars(vars map[string]interface{}) error
	SetForks(n int) error
	SetTimeout(d time.Duration) error
	SetSubset(pattern string) error
}

// VarsResolver resolves a play's conditional vars_files declarations against
// the hosts available after the setup step, folding the resulting per-host
// variables into the fact cache. Optional collaborator; a nil resolver means
// vars_files are ignored.
type VarsResolver interface {
	ResolveVarsFiles(ctx context.Context, play *config.Play, hosts []string, cache *facts.Cache) error
}

// EngineOption is a function type used to configure the engine at creation.
type EngineOption func(EngineV1) error

// WithInventory provides a pre-built inventory collaborator.
func WithInventory(inv inventory.Inventory) EngineOption {
	return func(e EngineV1) error {
		if inv == nil {
			return droverrors.NewConfigError("inventory cannot be nil", nil)
		}
		return e.SetInventory(inv)
	}
}

// WithHostListPath builds the default file-backed inventory from the given
// host list file. Ignored if WithInventory is also applied.
func WithHostListPath(path string) EngineOption {
	return func(e EngineV1) error {
		if path == "" {
			return droverrors.NewConfigError("host list path cannot be empty", nil)
		}
		return e.SetHostListPath(path)
	}
}

// WithExecutor provides the remote task runner collaborator. Required.
func WithExecutor(ex executor.Executor) EngineOption {
	return func(e EngineV1) error {
		if ex == nil {
			return droverrors.NewConfigError("executor cannot be nil", nil)
		}
		return e.SetExecutor(ex)
	}
}

// WithEventBus provides the callback sink. Required.
func WithEventBus(bus events.Bus) EngineOption {
	return func(e EngineV1) error {
		if bus == nil {
			return droverrors.NewConfigError("event bus cannot be nil", nil)
		}
		return e.SetEventBus(bus)
	}
}

// WithStats provides the stats aggregator. Required.
func WithStats(agg *stats.Aggregator) EngineOption {
	return func(e EngineV1) error {
		if agg == nil {
			return droverrors.NewConfigError("stats aggregator cannot be nil", nil)
		}
		return e.SetStats(agg)
	}
}

// WithFactCache injects a fact cache, allowing facts to be shared across
// multiple engine runs.
func WithFactCache(cache *facts.Cache) EngineOption {
	return func(e EngineV1) error {
		if cache == nil {
			return droverrors.NewConfigError("fact cache cannot be nil", nil)
		}
		return e.SetFactCache(cache)
	}
}

// WithRenderer provides a custom templating collaborator.
func WithRenderer(r template.Renderer) EngineOption {
	return func(e EngineV1) error {
		if r == nil {
			return droverrors.NewConfigError("renderer cannot be nil", nil)
		}
		return e.SetRenderer(r)
	}
}

// WithLookupRegistry provides a custom lookup plugin registry.
func WithLookupRegistry(reg lookup.Registry) EngineOption {
	return func(e EngineV1) error {
		if reg == nil {
			return droverrors.NewConfigError("lookup registry cannot be nil", nil)
		}
		return e.SetLookupRegistry(reg)
	}
}

// WithVarsResolver provides the vars_files resolution collaborator.
func WithVarsResolver(r VarsResolver) EngineOption {
	return func(e EngineV1) error {
		return e.SetVarsResolver(r)
	}
}

// WithMetricsRegistryProvider provides a custom metrics provider.
func WithMetricsRegistryProvider(p metrics.RegistryProvider) EngineOption {
	return func(e EngineV1) error {
		if p == nil {
			return droverrors.NewConfigError("metrics registry provider cannot be nil", nil)
		}
		return e.SetMetricsRegistryProvider(p)
	}
}

// WithTracerProvider provides a custom tracing provider.
func WithTracerProvider(p tracing.TracerProvider) EngineOption {
	return func(e EngineV1) error {
		if p == nil {
			return droverrors.NewConfigError("tracer provider cannot be nil", nil)
		}
		return e.SetTracerProvider(p)
	}
}

// WithOnlyTags restricts the run to tasks carrying at least one of the given
// tags. Defaults to the universal tag "all".
func WithOnlyTags(tags []string) EngineOption {
	return func(e EngineV1) error {
		return e.SetOnlyTags(tags)
	}
}

// WithExtraVars supplies override variables that always take precedence over
// gathered facts.
func WithExtraVars(vars map[string]interface{}) EngineOption {
	return func(e EngineV1) error {
		return e.SetExtraVars(vars)
	}
}

// WithForks sets the host fan-out bound carried on every dispatch.
func WithForks(n int) EngineOption {
	return func(e EngineV1) error {
		if n <= 0 {
			return droverrors.NewConfigError("forks must be positive", nil)
		}
		return e.SetForks(n)
	}
}

// WithTimeout sets the per-dispatch connection timeout hint.
func WithTimeout(d time.Duration) EngineOption {
	return func(e EngineV1) error {
		if d < 0 {
			return droverrors.NewConfigError("timeout cannot be negative", nil)
		}
		return e.SetTimeout(d)
	}
}

// WithSubset narrows the inventory universe once at load time.
func WithSubset(pattern string) EngineOption {
	return func(e EngineV1) error {
		return e.SetSubset(pattern)
	}
}
