package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/drover-labs/drover/internal/config"
	"github.com/drover-labs/drover/internal/facts"
	intTracing "github.com/drover-labs/drover/internal/tracing"
	"github.com/drover-labs/drover/internal/util"
	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
	"github.com/drover-labs/drover/pkg/drover/v1/events"
	"github.com/drover-labs/drover/pkg/drover/v1/executor"
	"go.opentelemetry.io/otel/trace"
)

// runPlay executes one play end to end: pattern resolution, fact gathering,
// vars_files resolution, then the task list once per serial batch with a
// handler pass closing each batch. The bool result reports whether the play
// ran to completion; false without an error means the available host set was
// exhausted and the run must stop. A pattern matching zero hosts is benign
// and counts as completed.
func (e *Engine) runPlay(ctx context.Context, tracer trace.Tracer, doc *config.PlayDoc) (bool, error) {
	play := doc.Play
	pattern := e.renderPattern(doc)

	playCtx, span := tracer.Start(ctx, "drover.play.run")
	defer span.End()

	hosts := e.inv.ListHosts(pattern)
	span.SetAttributes(intTracing.PlayAttributes(play.DisplayName(), pattern, len(hosts))...)
	if len(hosts) == 0 {
		e.log.Infof("no hosts matched pattern '%s', skipping play '%s'", pattern, play.DisplayName())
		e.emit(events.Event{Type: events.NoHostsMatched, PlayName: play.DisplayName()})
		e.countPlay(play, "no_hosts")
		return true, nil
	}

	e.emit(events.Event{Type: events.PlayStart, PlayName: play.DisplayName()})

	if err := e.gatherFacts(playCtx, doc, pattern, e.availableHosts(pattern)); err != nil {
		intTracing.RecordError(span, err)
		e.countPlay(play, "error")
		return false, err
	}

	avail := e.availableHosts(pattern)
	if len(avail) == 0 {
		// Every candidate dropped out during setup. Treated like an empty
		// pattern match rather than a mid-play exhaustion.
		e.log.Infof("no hosts remained after fact gathering for play '%s'", play.DisplayName())
		e.emit(events.Event{Type: events.NoHostsMatched, PlayName: play.DisplayName()})
		e.countPlay(play, "no_hosts")
		return true, nil
	}

	if e.varsResolver != nil {
		if err := e.varsResolver.ResolveVarsFiles(playCtx, play, avail, e.cache); err != nil {
			intTracing.RecordError(span, err)
			e.countPlay(play, "error")
			return false, err
		}
	}

	for _, batch := range batchHosts(avail, play.Serial) {
		e.inv.AlsoRestrictTo(batch)
		ok, err := e.runBatch(playCtx, doc, pattern)
		e.inv.LiftAlsoRestriction()
		if err != nil {
			intTracing.RecordError(span, err)
			e.countPlay(play, "error")
			return false, err
		}
		if !ok {
			e.countPlay(play, "aborted")
			return false, nil
		}
	}

	e.countPlay(play, "completed")
	return true, nil
}

// renderPattern expands template expressions in the play's host pattern. A
// pattern that fails to render is used verbatim, so a literal pattern
// containing template-looking characters still resolves.
func (e *Engine) renderPattern(doc *config.PlayDoc) string {
	rendered, err := e.renderer.Render(doc.BaseDir, doc.Play.Hosts, e.taskVars(doc.Play))
	if err != nil {
		return doc.Play.Hosts
	}
	return rendered
}

func (e *Engine) countPlay(play *config.Play, status string) {
	if e.playCounter != nil {
		e.playCounter.WithLabelValues(play.DisplayName(), status).Inc()
	}
}

// gatherFacts runs the setup module against the still-available hosts that
// need it and folds the reported facts into the cache. gather_facts false
// skips entirely; unset limits the run to hosts without cached facts; true
// refreshes all. Hosts already failed or unreachable are filtered by the
// caller before they reach here.
func (e *Engine) gatherFacts(ctx context.Context, doc *config.PlayDoc, pattern string, hosts []string) error {
	play := doc.Play
	if play.GatherFacts != nil && !*play.GatherFacts {
		return nil
	}

	targets := hosts
	if play.GatherFacts == nil {
		targets = nil
		for _, host := range hosts {
			if _, ok := e.cache.Get(host)[facts.SetupOKKey]; !ok {
				targets = append(targets, host)
			}
		}
	}
	if len(targets) == 0 {
		return nil
	}

	e.emit(events.Event{Type: events.SetupStart, PlayName: play.DisplayName()})

	e.inv.RestrictTo(targets)
	defer e.inv.LiftRestriction()

	spec := executor.TaskSpec{
		Pattern: pattern,
		Module:  "setup",
		Args:    e.taskVars(play),
		Vars:    e.taskVars(play),
		Forks:   e.forks,
		Play:    playContext(doc),
	}
	result, err := e.exec.Run(ctx, spec)
	if err != nil {
		return droverrors.NewTaskExecutionError("setup", err)
	}
	e.stats.Compute(result, false, true)

	for host, res := range result.Contacted {
		if res.Failed() {
			continue
		}
		e.cache.Merge(host, res.Facts())
		e.cache.Merge(host, map[string]interface{}{facts.SetupOKKey: true})
		e.cache.Merge(host, e.extraVars)
	}
	for host := range result.Dark {
		e.emit(events.Event{Type: events.HostUnreachable, PlayName: play.DisplayName(), TaskName: "setup", Host: host})
	}
	return nil
}

// batchHosts splits the available hosts into consecutive groups of at most
// serial hosts, preserving inventory order. serial <= 0 means one batch.
func batchHosts(hosts []string, serial int) [][]string {
	if serial <= 0 || serial >= len(hosts) {
		return [][]string{hosts}
	}
	var batches [][]string
	for start := 0; start < len(hosts); start += serial {
		end := start + serial
		if end > len(hosts) {
			end = len(hosts)
		}
		batches = append(batches, hosts[start:end])
	}
	return batches
}

// runBatch runs every tag-matching task against the current batch, then
// fires the handlers that accumulated notifications, in declaration order.
// A false result means the batch's host set was exhausted mid-way.
func (e *Engine) runBatch(ctx context.Context, doc *config.PlayDoc, pattern string) (bool, error) {
	play := doc.Play

	for i := range play.Tasks {
		task := &play.Tasks[i]
		if !tagsIntersect(task.Tags, e.onlyTags) {
			e.log.Debugf("skipping task '%s': no tag match", task.DisplayName())
			continue
		}
		ok, err := e.runTask(ctx, doc, pattern, task, false)
		if err != nil {
			return false, err
		}
		if !ok {
			e.emit(events.Event{Type: events.NoHostsRemaining, PlayName: play.DisplayName(), TaskName: task.DisplayName()})
			return false, nil
		}
	}

	for i := range play.Handlers {
		handler := &play.Handlers[i]
		if len(handler.NotifiedBy) == 0 {
			continue
		}
		notified := util.Dedupe(handler.NotifiedBy)
		handler.NotifiedBy = nil

		e.inv.RestrictTo(notified)
		ok, err := e.runTask(ctx, doc, pattern, &handler.Task, true)
		e.inv.LiftRestriction()
		if err != nil {
			return false, err
		}
		if !ok {
			e.emit(events.Event{Type: events.NoHostsRemaining, PlayName: play.DisplayName(), TaskName: handler.DisplayName()})
			return false, nil
		}
	}
	return true, nil
}

// runTask dispatches one task (or handler) against the hosts still available
// under the current restriction frames. The bool result is false when no
// host remains to run on, which the caller treats as batch exhaustion.
func (e *Engine) runTask(ctx context.Context, doc *config.PlayDoc, pattern string, task *config.Task, handler bool) (bool, error) {
	play := doc.Play
	name := e.renderTaskName(doc, task)

	avail := e.availableHosts(pattern)
	if len(avail) == 0 {
		return false, nil
	}

	eventType := events.TaskStart
	if handler {
		eventType = events.HandlerStart
	}
	e.emit(events.Event{Type: eventType, PlayName: play.DisplayName(), TaskName: name})
	if e.taskCounter != nil {
		e.taskCounter.WithLabelValues(play.DisplayName(), name, task.Module).Inc()
	}

	vars := e.taskVars(play)
	args, err := e.renderArgs(doc, task, vars)
	if err != nil {
		return false, err
	}

	e.inv.RestrictTo(avail)
	defer e.inv.LiftRestriction()

	spec := executor.TaskSpec{
		Pattern:     pattern,
		Module:      task.Module,
		Args:        args,
		Vars:        vars,
		Conditional: task.When,
		Forks:       e.forks,
		Play:        playContext(doc),
	}

	var result *executor.Result
	if task.IsAsync() {
		result, err = e.runAsyncTask(ctx, task, spec)
	} else {
		result, err = e.exec.Run(ctx, spec)
	}
	if err != nil {
		return false, droverrors.NewTaskExecutionError(name, err)
	}

	e.stats.Compute(result, task.IgnoreErrors, false)

	for host, res := range result.Contacted {
		if res.Skipped() {
			continue
		}
		e.fold(host, task, res)
		if res.Failed() {
			if !task.IgnoreErrors {
				e.emit(events.Event{Type: events.HostFailed, PlayName: play.DisplayName(), TaskName: name, Host: host})
			}
			continue
		}
		if res.Changed() {
			for _, notify := range task.Notify {
				if err := e.flagHandler(doc, notify, host); err != nil {
					return false, err
				}
			}
		}
	}
	for host := range result.Dark {
		e.emit(events.Event{Type: events.HostUnreachable, PlayName: play.DisplayName(), TaskName: name, Host: host})
	}

	if result.Empty() {
		return false, nil
	}
	return len(e.availableHosts(pattern)) > 0, nil
}

// fold merges a host's task result into the fact cache: module-reported
// facts first, then the registered result under the task's register name,
// with extra vars re-applied last so they always win.
func (e *Engine) fold(host string, task *config.Task, res executor.HostResult) {
	if reported := res.Facts(); len(reported) > 0 {
		e.cache.Merge(host, reported)
	}
	if task.Register != "" {
		registered := util.DeepCopyStringMap(map[string]interface{}(res))
		if stdout, ok := res[executor.KeyStdout].(string); ok {
			registered[executor.KeyStdoutLines] = splitLines(stdout)
		}
		e.cache.Merge(host, map[string]interface{}{task.Register: registered})
	}
	e.cache.Merge(host, e.extraVars)
}

// flagHandler records that host notified the named handler. The notify name
// and the handler names are both template-expanded before comparison. A
// notification that matches no handler is a hard error.
func (e *Engine) flagHandler(doc *config.PlayDoc, notify, host string) error {
	play := doc.Play
	vars := e.taskVars(play)
	want := notify
	if rendered, err := e.renderer.Render(doc.BaseDir, notify, vars); err == nil {
		want = rendered
	}

	matched := false
	for i := range play.Handlers {
		handler := &play.Handlers[i]
		name := handler.DisplayName()
		if rendered, err := e.renderer.Render(doc.BaseDir, name, vars); err == nil {
			name = rendered
		}
		if name != want {
			continue
		}
		matched = true
		if !contains(handler.NotifiedBy, host) {
			handler.NotifiedBy = append(handler.NotifiedBy, host)
			e.emit(events.Event{Type: events.NotifyTriggered, PlayName: play.DisplayName(), TaskName: name, Host: host})
		}
	}
	if !matched {
		return droverrors.NewHandlerNotFoundError(want)
	}
	return nil
}

// availableHosts resolves the pattern under the active restriction frames
// and drops every host the aggregator has marked failed or unreachable.
func (e *Engine) availableHosts(pattern string) []string {
	var out []string
	for _, host := range e.inv.ListHosts(pattern) {
		if !e.stats.FailedOrUnreachable(host) {
			out = append(out, host)
		}
	}
	return out
}

// taskVars returns the variable map tasks are rendered with: the play's vars
// with extra vars layered on top.
func (e *Engine) taskVars(play *config.Play) map[string]interface{} {
	return util.MergeMaps(play.Vars, e.extraVars)
}

// renderArgs expands template expressions in the task's string argument
// values. Non-string values pass through untouched.
func (e *Engine) renderArgs(doc *config.PlayDoc, task *config.Task, vars map[string]interface{}) (map[string]interface{}, error) {
	if len(task.Args) == 0 {
		return nil, nil
	}
	args := make(map[string]interface{}, len(task.Args))
	for key, value := range task.Args {
		s, ok := value.(string)
		if !ok {
			args[key] = util.DeepCopy(value)
			continue
		}
		rendered, err := e.renderer.Render(doc.BaseDir, s, vars)
		if err != nil {
			return nil, droverrors.NewValidationError(
				fmt.Sprintf("failed to render argument '%s' of task '%s'", key, task.DisplayName()), err)
		}
		args[key] = rendered
	}
	return args, nil
}

// renderTaskName expands the task's display name, falling back to the raw
// name when rendering fails.
func (e *Engine) renderTaskName(doc *config.PlayDoc, task *config.Task) string {
	name := task.DisplayName()
	rendered, err := e.renderer.Render(doc.BaseDir, name, e.taskVars(doc.Play))
	if err != nil {
		return name
	}
	return rendered
}

func playContext(doc *config.PlayDoc) executor.PlayContext {
	play := doc.Play
	return executor.PlayContext{
		Name:       play.DisplayName(),
		BaseDir:    doc.BaseDir,
		RemoteUser: play.RemoteUser,
		RemotePort: play.RemotePort,
		Transport:  play.Transport,
		Sudo:       play.Sudo,
		SudoUser:   play.SudoUser,
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func splitLines(s string) []interface{} {
	trimmed := strings.TrimRight(s, "\r\n")
	if trimmed == "" {
		return []interface{}{}
	}
	parts := strings.Split(trimmed, "\n")
	lines := make([]interface{}, len(parts))
	for i, part := range parts {
		lines[i] = strings.TrimRight(part, "\r")
	}
	return lines
}
