package config

import (
	"fmt"

	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
)

// ValidatePlayStructure performs logical validation beyond what the schema
// can express. Returns all problems found rather than stopping at the first.
func ValidatePlayStructure(play *Play) []error {
	var errs []error

	if play.Hosts == "" {
		errs = append(errs, droverrors.NewValidationError("play is missing required 'hosts' pattern", nil))
	}

	for i := range play.Tasks {
		errs = append(errs, validateTask(&play.Tasks[i], fmt.Sprintf("task %d", i+1))...)
	}
	for i := range play.Handlers {
		handler := &play.Handlers[i]
		errs = append(errs, validateTask(&handler.Task, fmt.Sprintf("handler %d", i+1))...)
		if handler.DisplayName() == "" {
			errs = append(errs, droverrors.NewValidationError(
				fmt.Sprintf("handler %d has no name to be notified by", i+1), nil))
		}
		if len(handler.Notify) > 0 {
			errs = append(errs, droverrors.NewValidationError(
				fmt.Sprintf("handler %d ('%s') cannot itself notify", i+1, handler.DisplayName()), nil))
		}
	}
	return errs
}

func validateTask(task *Task, label string) []error {
	var errs []error
	if task.Module == "" {
		errs = append(errs, droverrors.NewValidationError(
			fmt.Sprintf("%s is missing required 'module'", label), nil))
	}
	if task.PollInterval > 0 && task.AsyncSeconds <= 0 {
		errs = append(errs, droverrors.NewValidationError(
			fmt.Sprintf("%s ('%s') sets poll without async", label, task.DisplayName()), nil))
	}
	if task.AsyncSeconds > 0 && task.Register != "" && task.PollInterval <= 0 {
		errs = append(errs, droverrors.NewValidationError(
			fmt.Sprintf("%s ('%s') cannot register the result of a fire-and-forget task", label, task.DisplayName()), nil))
	}
	return errs
}
