package engine

import (
	"sort"

	"github.com/drover-labs/drover/internal/config"
	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
)

// tagsIntersect reports whether any requested tag appears in the task's
// effective tag set. Task tags already include the owning play's tags and
// the implicit "all" tag, applied at load time.
func tagsIntersect(taskTags, requested []string) bool {
	for _, want := range requested {
		for _, have := range taskTags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// playMatchesTags reports whether the play has at least one task the
// requested tags select. A play without tasks still runs, so includes that
// resolve to handler-only plays are not silently dropped.
func (e *Engine) playMatchesTags(play *config.Play) bool {
	if len(play.Tasks) == 0 {
		return true
	}
	for i := range play.Tasks {
		if tagsIntersect(play.Tasks[i].Tags, e.onlyTags) {
			return true
		}
	}
	return false
}

// checkTags validates the requested tags against every tag declared anywhere
// in the playbook before any play runs. Requesting a tag no task carries
// aborts the run up front with the sorted unknown set and the sorted set of
// declared tags the request did not select. The implicit "all" tag is never
// suggested back.
func (e *Engine) checkTags() error {
	declared := make(map[string]struct{})
	for _, doc := range e.docs {
		for i := range doc.Play.Tasks {
			for _, tag := range doc.Play.Tasks[i].Tags {
				declared[tag] = struct{}{}
			}
		}
		for i := range doc.Play.Handlers {
			for _, tag := range doc.Play.Handlers[i].Tags {
				declared[tag] = struct{}{}
			}
		}
	}

	requested := make(map[string]struct{}, len(e.onlyTags))
	for _, tag := range e.onlyTags {
		requested[tag] = struct{}{}
	}

	var unknown []string
	for tag := range requested {
		if tag == "all" {
			continue
		}
		if _, ok := declared[tag]; !ok {
			unknown = append(unknown, tag)
		}
	}
	if len(unknown) == 0 {
		return nil
	}

	var unselected []string
	for tag := range declared {
		if tag == "all" {
			continue
		}
		if _, ok := requested[tag]; !ok {
			unselected = append(unselected, tag)
		}
	}
	sort.Strings(unknown)
	sort.Strings(unselected)
	return droverrors.NewUnknownTagError(unknown, unselected)
}
