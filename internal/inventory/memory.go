package inventory

import (
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/drover-labs/drover/pkg/drover/v1/inventory"
)

// MemoryInventory implements the public inventory.Inventory interface over an
// in-memory host list with named groups. Host order is preserved from
// construction and survives pattern matching, so batch composition is
// deterministic.
//
// Two independent restriction stacks narrow the visible universe: the play
// restriction stack (RestrictTo) and the batch restriction stack
// (AlsoRestrictTo). A host is listed only when it matches the pattern and is
// present in the top frame of every non-empty stack.
type MemoryInventory struct {
	mu               sync.RWMutex
	hosts            []string
	groups           map[string][]string
	restrictions     [][]string
	alsoRestrictions [][]string
}

// NewMemoryInventory builds an inventory from an ordered host list and a
// group membership map. Group hosts not present in the host list are
// appended, groups visited in name order so the universe order is stable
// across runs.
func NewMemoryInventory(hosts []string, groups map[string][]string) *MemoryInventory {
	inv := &MemoryInventory{
		groups: make(map[string][]string, len(groups)),
	}
	seen := make(map[string]struct{})
	add := func(host string) {
		if _, dup := seen[host]; dup {
			return
		}
		seen[host] = struct{}{}
		inv.hosts = append(inv.hosts, host)
	}
	for _, host := range hosts {
		add(host)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		members := groups[name]
		inv.groups[name] = append([]string(nil), members...)
		for _, host := range members {
			add(host)
		}
	}
	return inv
}

var _ inventory.Inventory = (*MemoryInventory)(nil)

// ListHosts returns the hosts matching the pattern, filtered through the
// active restriction frames, in inventory order. Patterns are
// semicolon-or-colon separated unions of group names, hostnames, and shell
// globs; "all" and "*" match every host.
func (inv *MemoryInventory) ListHosts(pattern string) []string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	matched := inv.matchPattern(pattern)

	if n := len(inv.restrictions); n > 0 {
		matched = intersect(matched, inv.restrictions[n-1])
	}
	if n := len(inv.alsoRestrictions); n > 0 {
		matched = intersect(matched, inv.alsoRestrictions[n-1])
	}
	return matched
}

// matchPattern resolves a union pattern against the full universe. Callers
// hold at least a read lock.
func (inv *MemoryInventory) matchPattern(pattern string) []string {
	subpatterns := splitPattern(pattern)
	wanted := make(map[string]struct{})
	for _, sub := range subpatterns {
		if sub == "all" || sub == "*" {
			for _, host := range inv.hosts {
				wanted[host] = struct{}{}
			}
			continue
		}
		if members, isGroup := inv.groups[sub]; isGroup {
			for _, host := range members {
				wanted[host] = struct{}{}
			}
			continue
		}
		for _, host := range inv.hosts {
			if ok, _ := path.Match(sub, host); ok || host == sub {
				wanted[host] = struct{}{}
			}
		}
	}

	matched := make([]string, 0, len(wanted))
	for _, host := range inv.hosts {
		if _, ok := wanted[host]; ok {
			matched = append(matched, host)
		}
	}
	return matched
}

// RestrictTo pushes a play-level restriction frame.
func (inv *MemoryInventory) RestrictTo(hosts []string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.restrictions = append(inv.restrictions, append([]string(nil), hosts...))
}

// LiftRestriction pops the play-level restriction frame. Panics when no
// frame is active, since an unmatched lift is always a programming error.
func (inv *MemoryInventory) LiftRestriction() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if len(inv.restrictions) == 0 {
		panic("inventory: popped too many restrictions")
	}
	inv.restrictions = inv.restrictions[:len(inv.restrictions)-1]
}

// AlsoRestrictTo pushes a batch-level restriction frame.
func (inv *MemoryInventory) AlsoRestrictTo(hosts []string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.alsoRestrictions = append(inv.alsoRestrictions, append([]string(nil), hosts...))
}

// LiftAlsoRestriction pops the batch-level restriction frame. Panics when no
// frame is active.
func (inv *MemoryInventory) LiftAlsoRestriction() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if len(inv.alsoRestrictions) == 0 {
		panic("inventory: popped too many batch restrictions")
	}
	inv.alsoRestrictions = inv.alsoRestrictions[:len(inv.alsoRestrictions)-1]
}

// Subset permanently narrows the universe to hosts matching the pattern.
// Applied once at startup, before any restriction frame exists.
func (inv *MemoryInventory) Subset(pattern string) {
	if pattern == "" {
		return
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.hosts = inv.matchPattern(pattern)
	allowed := make(map[string]struct{}, len(inv.hosts))
	for _, host := range inv.hosts {
		allowed[host] = struct{}{}
	}
	for name, members := range inv.groups {
		kept := members[:0]
		for _, host := range members {
			if _, ok := allowed[host]; ok {
				kept = append(kept, host)
			}
		}
		inv.groups[name] = kept
	}
}

// Groups returns the group names present in the inventory.
func (inv *MemoryInventory) Groups() []string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	names := make([]string, 0, len(inv.groups))
	for name := range inv.groups {
		names = append(names, name)
	}
	return names
}

// splitPattern breaks a union pattern on semicolons and colons, trimming
// whitespace and dropping empty parts.
func splitPattern(pattern string) []string {
	parts := strings.FieldsFunc(pattern, func(r rune) bool {
		return r == ':' || r == ';'
	})
	out := parts[:0]
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// intersect keeps the elements of ordered that also appear in allowed,
// preserving order.
func intersect(ordered, allowed []string) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, host := range allowed {
		set[host] = struct{}{}
	}
	kept := make([]string, 0, len(ordered))
	for _, host := range ordered {
		if _, ok := set[host]; ok {
			kept = append(kept, host)
		}
	}
	return kept
}
