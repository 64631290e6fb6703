// Package inventory defines the host-availability contract the engine
// consumes. Implementations own host storage and pattern resolution; the
// engine layers per-task availability (failed/unreachable subtraction) on
// top of whatever restriction frames are active.
package inventory

// Inventory resolves host patterns against a host universe narrowed by a
// stack of restriction frames.
//
// Two independent stacks exist. RestrictTo pushes an explicit frame: the
// active set becomes exactly the given hosts. AlsoRestrictTo pushes an
// intersection frame: the active set becomes the given hosts intersected
// with the previously active set. Each Lift pops the corresponding frame.
// Frames must be pushed and popped in strict LIFO order matching the nesting
// of setup/batch/handler scopes; an unmatched lift is a programming error
// and implementations panic on it.
type Inventory interface {
	// ListHosts returns the hosts matching the pattern, filtered through the
	// currently active restriction frames, in stable inventory order. The
	// patterns "all" and "*" match every host.
	ListHosts(pattern string) []string

	// RestrictTo pushes an explicit restriction frame.
	RestrictTo(hosts []string)
	// AlsoRestrictTo pushes an intersection restriction frame.
	AlsoRestrictTo(hosts []string)
	// LiftRestriction pops the most recent explicit frame.
	LiftRestriction()
	// LiftAlsoRestriction pops the most recent intersection frame.
	LiftAlsoRestriction()

	// Subset permanently narrows the host universe to the given pattern
	// expression. Applied once at load time, before any play runs.
	Subset(pattern string)
}
