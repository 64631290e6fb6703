package errors

import (
	"errors"
	"fmt"
	"strings"
)

// --- Drover Core Error Types ---

// ConfigError represents an error encountered while loading or parsing a
// playbook document, resolving an include directive, or applying engine
// options at construction time.
type ConfigError struct {
	Message string
	Cause   error
}

func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{Message: message, Cause: cause}
}
func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}
func (e *ConfigError) Unwrap() error { return e.Cause }

// ValidationError indicates that a play or task definition failed logical
// validation checks after parsing.
type ValidationError struct {
	Message string
	Cause   error
}

func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}
func (e *ValidationError) Unwrap() error { return e.Cause }

// UnknownTagError is raised after scanning every play in a playbook when one
// or more requested tags never appeared on any task. Unknown holds the tags
// that matched nothing; Known holds every tag seen in the playbook that the
// request did not select, to guide correction. Both slices are sorted.
type UnknownTagError struct {
	Unknown []string
	Known   []string
}

func NewUnknownTagError(unknown, known []string) *UnknownTagError {
	return &UnknownTagError{Unknown: unknown, Known: known}
}
func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("tag(s) not found in playbook: %s. possible values: %s",
		strings.Join(e.Unknown, ","), strings.Join(e.Known, ","))
}

// HandlerNotFoundError indicates that a task's 'notify' entry resolved to
// zero handlers in the owning play. This is fatal to the run.
type HandlerNotFoundError struct {
	Name string
}

func NewHandlerNotFoundError(name string) *HandlerNotFoundError {
	return &HandlerNotFoundError{Name: name}
}
func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("change handler (%s) is not defined", e.Name)
}

// PluginNotFoundError indicates that a with_<name> include loop named a
// lookup plugin that is not present in the registry.
type PluginNotFoundError struct {
	Name string
}

func NewPluginNotFoundError(name string) *PluginNotFoundError {
	return &PluginNotFoundError{Name: name}
}
func (e *PluginNotFoundError) Error() string {
	return fmt.Sprintf("lookup plugin not found: %s", e.Name)
}

// TaskExecutionError represents a fatal error returned by the executor
// collaborator while dispatching a task to its hosts. Per-host failures are
// not errors; they are folded into stats and the result set.
type TaskExecutionError struct {
	TaskName string
	Cause    error
}

func NewTaskExecutionError(taskName string, cause error) *TaskExecutionError {
	return &TaskExecutionError{TaskName: taskName, Cause: cause}
}
func (e *TaskExecutionError) Error() string {
	if e.TaskName == "" {
		return fmt.Sprintf("task execution failed: %v", e.Cause)
	}
	return fmt.Sprintf("task '%s' execution failed: %v", e.TaskName, e.Cause)
}
func (e *TaskExecutionError) Unwrap() error { return e.Cause }

// IsUnknownTag checks if an error is an UnknownTagError using errors.As.
func IsUnknownTag(err error) bool {
	var tagErr *UnknownTagError
	return errors.As(err, &tagErr)
}

// IsHandlerNotFound checks if an error is a HandlerNotFoundError.
func IsHandlerNotFound(err error) bool {
	var hErr *HandlerNotFoundError
	return errors.As(err, &hErr)
}
