package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/drover-labs/drover/internal/config"
	"github.com/drover-labs/drover/internal/facts"
	intInventory "github.com/drover-labs/drover/internal/inventory"
	intLookup "github.com/drover-labs/drover/internal/lookup"
	intMetrics "github.com/drover-labs/drover/internal/metrics"
	intTemplate "github.com/drover-labs/drover/internal/template"
	intTracing "github.com/drover-labs/drover/internal/tracing"
	"github.com/drover-labs/drover/internal/util"
	drover "github.com/drover-labs/drover/pkg/drover/v1"
	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
	"github.com/drover-labs/drover/pkg/drover/v1/events"
	"github.com/drover-labs/drover/pkg/drover/v1/executor"
	"github.com/drover-labs/drover/pkg/drover/v1/inventory"
	droverlog "github.com/drover-labs/drover/pkg/drover/v1/log"
	"github.com/drover-labs/drover/pkg/drover/v1/lookup"
	"github.com/drover-labs/drover/pkg/drover/v1/metrics"
	"github.com/drover-labs/drover/pkg/drover/v1/stats"
	"github.com/drover-labs/drover/pkg/drover/v1/template"
	drovertracing "github.com/drover-labs/drover/pkg/drover/v1/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "drover-engine"

// Engine drives a loaded playbook to completion: one play at a time, one
// task at a time, with all host fan-out delegated to the executor
// collaborator. It owns the fact cache, the stats aggregator, and the
// handler notification state for the duration of a run.
type Engine struct {
	log          droverlog.Logger
	playbookPath string
	docs         []*config.PlayDoc

	inv             inventory.Inventory
	hostListPath    string
	exec            executor.Executor
	bus             events.Bus
	stats           *stats.Aggregator
	cache           *facts.Cache
	renderer        template.Renderer
	lookups         lookup.Registry
	varsResolver    drover.VarsResolver
	metricsProvider metrics.RegistryProvider
	tracerProvider  drovertracing.TracerProvider

	onlyTags      []string
	extraVars     map[string]interface{}
	forks         int
	timeout       time.Duration
	subsetPattern string

	// Metrics collectors
	runCounter  *prometheus.CounterVec
	runDuration prometheus.Histogram
	playCounter *prometheus.CounterVec
	taskCounter *prometheus.CounterVec
}

var _ drover.EngineV1 = (*Engine)(nil)

// NewEngine constructs an engine for the playbook at playbookPath. The
// executor, event bus, stats aggregator, and an inventory (direct or via a
// host list path) are required; everything else gets a default. The playbook
// is loaded and include-expanded here, so load errors surface before any
// host is touched.
func NewEngine(log droverlog.Logger, playbookPath string, opts ...drover.EngineOption) (*Engine, error) {
	if log == nil {
		return nil, droverrors.NewConfigError("logger cannot be nil", nil)
	}
	if playbookPath == "" {
		return nil, droverrors.NewConfigError("playbook path cannot be empty", nil)
	}

	e := &Engine{
		log:          log,
		playbookPath: playbookPath,
		onlyTags:     []string{"all"},
		forks:        5,
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, droverrors.NewConfigError(fmt.Sprintf("failed to apply engine option: %v", err), err)
		}
	}

	if e.inv == nil && e.hostListPath != "" {
		inv, err := intInventory.LoadHostList(e.hostListPath)
		if err != nil {
			return nil, err
		}
		e.inv = inv
	}
	if e.inv == nil {
		return nil, droverrors.NewConfigError("an inventory or host list path is required", nil)
	}
	if e.exec == nil {
		return nil, droverrors.NewConfigError("an executor is required", nil)
	}
	if e.bus == nil {
		return nil, droverrors.NewConfigError("an event bus is required", nil)
	}
	if e.stats == nil {
		return nil, droverrors.NewConfigError("a stats aggregator is required", nil)
	}

	if e.cache == nil {
		e.cache = facts.New()
	}
	if e.renderer == nil {
		e.renderer = intTemplate.NewGoRenderer()
	}
	if e.lookups == nil {
		e.lookups = intLookup.NewDefaultRegistry()
	}
	if e.metricsProvider == nil {
		e.log.Warnf("No metrics provider provided, using default Prometheus provider.")
		e.metricsProvider = intMetrics.NewPrometheusRegistryProvider()
	}
	if e.tracerProvider == nil {
		tp, err := intTracing.NewNoOpProvider()
		if err != nil {
			return nil, droverrors.NewConfigError("failed to create default NoOp tracer provider", err)
		}
		e.tracerProvider = tp
	}
	if len(e.onlyTags) == 0 {
		e.onlyTags = []string{"all"}
	}

	if e.subsetPattern != "" {
		e.inv.Subset(e.subsetPattern)
	}

	loader := config.NewLoader(e.renderer, e.lookups)
	docs, err := loader.LoadFile(e.playbookPath, util.DeepCopyStringMap(e.extraVars))
	if err != nil {
		return nil, err
	}
	e.docs = docs

	e.initMetrics()
	return e, nil
}

func (e *Engine) initMetrics() {
	if e.metricsProvider == nil {
		return
	}
	reg := e.metricsProvider.Registry()
	if reg == nil {
		e.log.Errorf("Metrics provider returned a nil registry, cannot initialize metrics.")
		return
	}

	e.runCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "drover_playbook_runs_total", Help: "Total number of playbook runs by final status."},
		[]string{"playbook", "status"},
	)
	reg.MustRegister(e.runCounter)

	e.runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "drover_playbook_run_duration_seconds", Help: "Duration of playbook runs in seconds.", Buckets: prometheus.DefBuckets},
	)
	reg.MustRegister(e.runDuration)

	e.playCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "drover_play_runs_total", Help: "Total number of play executions by outcome."},
		[]string{"play", "status"},
	)
	reg.MustRegister(e.playCounter)

	e.taskCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "drover_task_runs_total", Help: "Total number of task dispatches."},
		[]string{"play", "task", "module"},
	)
	reg.MustRegister(e.taskCounter)
}

// Run executes every play in order, stopping at the first play that fails
// mid-batch. The returned map summarizes every host the run touched; it is
// populated even when the run aborts early, so partial results stay
// reportable.
func (e *Engine) Run(ctx context.Context) (map[string]stats.Summary, error) {
	tracer := e.tracerProvider.GetTracer(tracerName)
	runCtx, span := tracer.Start(ctx, "drover.playbook.run")
	defer span.End()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	e.emit(events.Event{Type: events.RunStart})

	status := "completed"
	defer func() {
		duration := time.Since(start)
		if e.runDuration != nil {
			e.runDuration.Observe(duration.Seconds())
		}
		if e.runCounter != nil {
			e.runCounter.WithLabelValues(e.playbookPath, status).Inc()
		}
		span.SetAttributes(
			attribute.String("drover.playbook.path", e.playbookPath),
			attribute.String("drover.playbook.status", status),
			attribute.Int64("drover.playbook.duration_ms", duration.Milliseconds()),
			attribute.Int("drover.playbook.play_count", len(e.docs)),
		)
	}()

	if err := e.checkTags(); err != nil {
		status = "failed"
		intTracing.RecordError(span, err)
		return nil, err
	}

	for _, doc := range e.docs {
		if !e.playMatchesTags(doc.Play) {
			e.log.Debugf("play '%s' has no tasks matching the requested tags, skipping", doc.Play.DisplayName())
			continue
		}
		ok, err := e.runPlay(runCtx, tracer, doc)
		if err != nil {
			status = "failed"
			intTracing.RecordError(span, err)
			e.emit(events.Event{Type: events.RunEnd, PlayName: doc.Play.DisplayName()})
			return e.summaries(), err
		}
		if !ok {
			// Fail fast: the first aborted play ends the whole run.
			status = "failed"
			break
		}
	}

	e.emit(events.Event{Type: events.RunEnd})
	if status == "completed" {
		span.SetStatus(codes.Ok, "")
	}
	return e.summaries(), nil
}

// summaries derives the final per-host report from the stats aggregator.
func (e *Engine) summaries() map[string]stats.Summary {
	out := make(map[string]stats.Summary)
	for _, host := range e.stats.Processed() {
		out[host] = e.stats.Summarize(host)
	}
	return out
}

func (e *Engine) emit(event events.Event) {
	event.Timestamp = time.Now()
	e.bus.Emit(event)
}

// MetricsRegistryProvider returns the engine's metrics provider.
func (e *Engine) MetricsRegistryProvider() metrics.RegistryProvider { return e.metricsProvider }

// TracerProvider returns the engine's tracing provider.
func (e *Engine) TracerProvider() drovertracing.TracerProvider { return e.tracerProvider }

func (e *Engine) SetInventory(inv inventory.Inventory) error {
	if inv == nil {
		return droverrors.NewConfigError("inventory cannot be nil", nil)
	}
	e.inv = inv
	return nil
}

func (e *Engine) SetHostListPath(path string) error {
	if path == "" {
		return droverrors.NewConfigError("host list path cannot be empty", nil)
	}
	e.hostListPath = path
	return nil
}

func (e *Engine) SetExecutor(ex executor.Executor) error {
	if ex == nil {
		return droverrors.NewConfigError("executor cannot be nil", nil)
	}
	e.exec = ex
	return nil
}

func (e *Engine) SetEventBus(bus events.Bus) error {
	if bus == nil {
		return droverrors.NewConfigError("event bus cannot be nil", nil)
	}
	e.bus = bus
	return nil
}

func (e *Engine) SetStats(agg *stats.Aggregator) error {
	if agg == nil {
		return droverrors.NewConfigError("stats aggregator cannot be nil", nil)
	}
	e.stats = agg
	return nil
}

func (e *Engine) SetFactCache(cache *facts.Cache) error {
	if cache == nil {
		return droverrors.NewConfigError("fact cache cannot be nil", nil)
	}
	e.cache = cache
	return nil
}

func (e *Engine) SetRenderer(r template.Renderer) error {
	if r == nil {
		return droverrors.NewConfigError("renderer cannot be nil", nil)
	}
	e.renderer = r
	return nil
}

func (e *Engine) SetLookupRegistry(reg lookup.Registry) error {
	if reg == nil {
		return droverrors.NewConfigError("lookup registry cannot be nil", nil)
	}
	e.lookups = reg
	return nil
}

func (e *Engine) SetVarsResolver(r drover.VarsResolver) error {
	e.varsResolver = r
	return nil
}

func (e *Engine) SetMetricsRegistryProvider(p metrics.RegistryProvider) error {
	if p == nil {
		return droverrors.NewConfigError("metrics registry provider cannot be nil", nil)
	}
	e.metricsProvider = p
	return nil
}

func (e *Engine) SetTracerProvider(p drovertracing.TracerProvider) error {
	if p == nil {
		return droverrors.NewConfigError("tracer provider cannot be nil", nil)
	}
	e.tracerProvider = p
	return nil
}

func (e *Engine) SetOnlyTags(tags []string) error {
	e.onlyTags = append([]string(nil), tags...)
	return nil
}

func (e *Engine) SetExtraVars(vars map[string]interface{}) error {
	e.extraVars = util.DeepCopyStringMap(vars)
	return nil
}

func (e *Engine) SetForks(n int) error {
	if n <= 0 {
		return droverrors.NewConfigError("forks must be positive", nil)
	}
	e.forks = n
	return nil
}

func (e *Engine) SetTimeout(d time.Duration) error {
	if d < 0 {
		return droverrors.NewConfigError("timeout cannot be negative", nil)
	}
	e.timeout = d
	return nil
}

func (e *Engine) SetSubset(pattern string) error {
	e.subsetPattern = pattern
	return nil
}
