package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	drover "github.com/drover-labs/drover/pkg/drover/v1"
	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
	droverexec "github.com/drover-labs/drover/pkg/drover/v1/executor"
	droverlog "github.com/drover-labs/drover/pkg/drover/v1/log"
	"github.com/drover-labs/drover/pkg/drover/v1/stats"

	"github.com/drover-labs/drover/internal/config"
	"github.com/drover-labs/drover/internal/engine"
	"github.com/drover-labs/drover/internal/events"
	"github.com/drover-labs/drover/internal/executor"
	"github.com/drover-labs/drover/internal/inventory"
	"github.com/drover-labs/drover/internal/logger"
	"github.com/drover-labs/drover/internal/lookup"
	"github.com/drover-labs/drover/internal/metrics"
	"github.com/drover-labs/drover/internal/template"
	"github.com/drover-labs/drover/internal/tracing"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ExitSuccess         = 0
	ExitFailure         = 1
	ExitUsageError      = 2
	ExitTimeout         = 124
	ExitSigIntBase      = 128
	ExitSigInt          = ExitSigIntBase + int(syscall.SIGINT)
	ExitSigTerm         = ExitSigIntBase + int(syscall.SIGTERM)
	DefaultLogLevel     = "info"
	DefaultLogFmt       = "text"
	DefaultHostList     = "/etc/drover/hosts"
	DefaultForks        = 5
	DefaultEventBusSize = 256
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "validate" {
		runValidateCommand(os.Args[2:])
		return
	}
	if len(os.Args) == 2 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		printVersion()
		os.Exit(ExitSuccess)
	}
	exitCode := runExecuteCommand(os.Args[1:])
	os.Exit(exitCode)
}

func printVersion() {
	fmt.Printf("drover version %s\n", version)
	fmt.Printf("commit: %s\n", commit)
	fmt.Printf("built: %s\n", buildDate)
	fmt.Printf("go version: %s\n", runtime.Version())
	fmt.Printf("os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func runValidateCommand(args []string) {
	validateFlags := flag.NewFlagSet("validate", flag.ExitOnError)
	playbookPath := validateFlags.String("playbook", "", "Path to the playbook YAML file to validate (required)")
	logLevel := validateFlags.String("log-level", DefaultLogLevel, "Log level for validation output (debug, info, warn, error)")

	validateFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s validate -playbook <path> [flags...]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Validates the structure and schema compatibility of a drover playbook,")
		fmt.Fprintln(os.Stderr, "including every file it includes.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		validateFlags.PrintDefaults()
	}

	if err := validateFlags.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing validate flags: %v\n", err)
		os.Exit(ExitUsageError)
	}

	if *playbookPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -playbook flag is required for validation")
		validateFlags.Usage()
		os.Exit(ExitUsageError)
	}

	log := logger.NewLogger(*logLevel, "text", os.Stderr)
	log.Infof("Validating playbook: %s", *playbookPath)

	loader := config.NewLoader(template.NewGoRenderer(), lookup.NewDefaultRegistry())
	docs, err := loader.LoadFile(*playbookPath, nil)
	if err != nil {
		var validationErr *droverrors.ValidationError
		var configErr *droverrors.ConfigError
		if errors.As(err, &validationErr) {
			log.Errorf("Playbook validation failed:\n%s", validationErr.Error())
		} else if errors.As(err, &configErr) {
			log.Errorf("Playbook configuration error:\n%s", configErr.Error())
		} else {
			log.Errorf("Failed to load or validate playbook: %v", err)
		}
		os.Exit(ExitFailure)
	}

	log.Infof("Playbook validation successful: %s (%d plays)", *playbookPath, len(docs))
	os.Exit(ExitSuccess)
}

func runExecuteCommand(args []string) int {
	execFlags := flag.NewFlagSet("drover", flag.ExitOnError)
	playbookPath := execFlags.String("playbook", "", "Path to the main playbook YAML file (required)")
	hostList := execFlags.String("inventory", DefaultHostList, "Path to the host list file")
	logLevel := execFlags.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	logFormat := execFlags.String("log-format", DefaultLogFmt, "Log format (text, json)")
	forks := execFlags.Int("forks", DefaultForks, "Number of parallel host connections per task")
	tags := execFlags.String("tags", "", "Comma-separated list of tags; only tasks carrying one of them run")
	extraVars := execFlags.String("extra-vars", "", "Extra variables as space-separated key=value pairs; they override facts")
	limit := execFlags.String("limit", "", "Restrict the run to hosts matching this pattern")
	connection := execFlags.String("connection", "ssh", "Connection type (ssh, local)")
	remoteUser := execFlags.String("user", "", "Default remote user for SSH connections")
	remotePort := execFlags.Int("port", 0, "Default remote port for SSH connections")
	privateKey := execFlags.String("private-key", "", "Path to the SSH private key file")
	timeout := execFlags.Int("timeout", 10, "SSH connection timeout in seconds")
	versionFlag := execFlags.Bool("version", false, "Print version information and exit")

	execFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags...] -playbook <path>\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Executes a drover playbook against the inventory.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		execFlags.PrintDefaults()
	}

	if err := execFlags.Parse(args); err != nil {
		return ExitUsageError
	}

	if *versionFlag {
		printVersion()
		return ExitSuccess
	}

	if *playbookPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -playbook flag is required")
		execFlags.Usage()
		return ExitUsageError
	}
	if *logFormat != "text" && *logFormat != "json" {
		fmt.Fprintln(os.Stderr, "Error: -log-format must be 'text' or 'json'")
		return ExitUsageError
	}
	if *connection != "ssh" && *connection != "local" {
		fmt.Fprintln(os.Stderr, "Error: -connection must be 'ssh' or 'local'")
		return ExitUsageError
	}
	if *forks <= 0 {
		*forks = DefaultForks
		fmt.Fprintf(os.Stderr, "Warning: -forks must be positive, defaulting to %d\n", *forks)
	}

	var logWriter io.Writer = os.Stderr
	log := logger.NewLogger(*logLevel, *logFormat, logWriter)
	log = log.With("drover_version", version)

	log.Infof("drover v%s starting...", version)
	log.Debugf("Log level: %s", *logLevel)
	log.Debugf("Inventory: %s", *hostList)
	log.Debugf("Connection: %s", *connection)
	log.Debugf("Forks: %d", *forks)

	inv, err := inventory.LoadHostList(*hostList)
	if err != nil {
		log.Errorf("Failed to load host list '%s': %v", *hostList, err)
		return ExitFailure
	}

	eventBus := events.NewChannelEventBus(DefaultEventBusSize, log)
	defer eventBus.Close()
	metricsProvider := metrics.NewPrometheusRegistryProvider()
	tracerProvider, err := tracing.NewProviderFromEnv(context.Background())
	if err != nil {
		log.Warnf("Failed to initialize tracing from environment: %v. Using NoOp tracer.", err)
		tracerProvider, _ = tracing.NewNoOpProvider()
	}

	renderer := template.NewGoRenderer()
	var exec droverexec.Executor
	if *connection == "local" {
		exec = executor.NewLocal(inv, renderer, log, *forks)
	} else {
		exec = executor.NewSSH(inv, log, executor.SSHOptions{
			User:    *remoteUser,
			Port:    *remotePort,
			KeyPath: *privateKey,
			Timeout: time.Duration(*timeout) * time.Second,
		}, *forks)
	}

	engineOpts := []drover.EngineOption{
		drover.WithInventory(inv),
		drover.WithExecutor(exec),
		drover.WithEventBus(eventBus),
		drover.WithStats(stats.New()),
		drover.WithRenderer(renderer),
		drover.WithMetricsRegistryProvider(metricsProvider),
		drover.WithTracerProvider(tracerProvider),
		drover.WithForks(*forks),
	}
	if *tags != "" {
		engineOpts = append(engineOpts, drover.WithOnlyTags(splitList(*tags)))
	}
	if *extraVars != "" {
		engineOpts = append(engineOpts, drover.WithExtraVars(parseExtraVars(*extraVars)))
	}
	if *limit != "" {
		engineOpts = append(engineOpts, drover.WithSubset(*limit))
	}

	internalEngine, err := engine.NewEngine(log, *playbookPath, engineOpts...)
	if err != nil {
		logLoadError(log, err)
		return ExitFailure
	}
	var droverEngine drover.EngineV1 = internalEngine

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	listener := events.NewMetricsEventListener(eventBus,
		newRunCounter(metricsProvider.Registry(), "drover_hosts_failed_total", "Hosts that failed a task during this run."),
		newRunCounter(metricsProvider.Registry(), "drover_hosts_unreachable_total", "Hosts that could not be contacted during this run."),
		newRunCounter(metricsProvider.Registry(), "drover_handler_notifications_total", "Handler notifications recorded during this run."),
		log)
	go listener.Start(runCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	defer close(sigChan)

	var receivedSignal os.Signal
	var sigMu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			sigMu.Lock()
			receivedSignal = sig
			sigMu.Unlock()
			cancelRun()
		case <-runCtx.Done():
			log.Debugf("Signal handler exiting because run context is done.")
		}
	}()
	defer wg.Wait()

	log.Infof("Starting playbook execution: %s", *playbookPath)
	summaries, execErr := droverEngine.Run(runCtx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if shutdownErr := tracerProvider.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warnf("Error shutting down tracer provider: %v", shutdownErr)
	}

	printRunSummary(log, summaries, execErr)

	sigMu.Lock()
	finalSignal := receivedSignal
	sigMu.Unlock()
	return determineExitCode(summaries, execErr, finalSignal, log)
}

func newRunCounter(reg *prometheus.Registry, name, help string) prometheus.Counter {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	reg.MustRegister(counter)
	return counter
}

// splitList parses a comma-separated flag value, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseExtraVars parses space-separated key=value pairs. Values never
// contain spaces in this form; quoting belongs in a vars file.
func parseExtraVars(value string) map[string]interface{} {
	vars := make(map[string]interface{})
	for _, field := range strings.Fields(value) {
		key, val, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			continue
		}
		vars[key] = val
	}
	return vars
}

func logLoadError(log droverlog.Logger, err error) {
	var tagErr *droverrors.UnknownTagError
	var validationErr *droverrors.ValidationError
	switch {
	case errors.As(err, &tagErr):
		log.Errorf("%s", tagErr.Error())
	case errors.As(err, &validationErr):
		log.Errorf("Playbook validation failed:\n%s", validationErr.Error())
	default:
		log.Errorf("Failed to create drover engine: %v", err)
	}
}

func printRunSummary(log droverlog.Logger, summaries map[string]stats.Summary, execErr error) {
	if len(summaries) == 0 {
		if execErr != nil {
			logExecutionErrorReason(log, execErr)
		} else {
			log.Warnf("Run finished without touching any host.")
		}
		return
	}

	hosts := make([]string, 0, len(summaries))
	for host := range summaries {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	log.Infof("PLAY RECAP:")
	for _, host := range hosts {
		s := summaries[host]
		line := fmt.Sprintf("  %-30s ok=%-4d changed=%-4d unreachable=%-4d failed=%-4d skipped=%-4d",
			host, s.Ok, s.Changed, s.Unreachable, s.Failures, s.Skipped)
		if s.Failures > 0 || s.Unreachable > 0 {
			log.Errorf("%s", line)
		} else {
			log.Infof("%s", line)
		}
	}
	if execErr != nil {
		logExecutionErrorReason(log, execErr)
	}
}

func logExecutionErrorReason(log droverlog.Logger, execErr error) {
	if errors.Is(execErr, context.Canceled) {
		log.Warnf("Execution Reason: Cancelled.")
	} else if errors.Is(execErr, context.DeadlineExceeded) {
		log.Errorf("Execution Reason: Timeout.")
	} else {
		log.Errorf("Execution Error: %v", execErr)
	}
}

func determineExitCode(summaries map[string]stats.Summary, execErr error, sig os.Signal, log droverlog.Logger) int {
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) && sig != nil {
			switch sig {
			case syscall.SIGINT:
				log.Warnf("Playbook execution interrupted by signal: SIGINT")
				return ExitSigInt
			case syscall.SIGTERM:
				log.Warnf("Playbook execution terminated by signal: SIGTERM")
				return ExitSigTerm
			default:
				log.Warnf("Playbook execution terminated by signal: %v", sig)
				return ExitFailure
			}
		}
		if errors.Is(execErr, context.DeadlineExceeded) {
			log.Errorf("Playbook execution timed out.")
			return ExitTimeout
		}
		return ExitFailure
	}

	for _, s := range summaries {
		if s.Failures > 0 || s.Unreachable > 0 {
			log.Errorf("Playbook finished with failed or unreachable hosts.")
			return ExitFailure
		}
	}
	log.Infof("Playbook completed successfully.")
	return ExitSuccess
}
