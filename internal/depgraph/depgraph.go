// Package depgraph resolves a requested set of daemon ids plus their
// transitive `depends` into parallel start/stop levels via Kahn's algorithm
// with level tracking, and supplies fuzzy did-you-mean suggestions for typos
// in requested ids. Level-by-level BFS expansion here mirrors the teacher's
// own boot-order resolution style in internal/boot (referenced from
// daemon/daemon.go's startup sequencing), generalized from a fixed patrol
// agent list to an arbitrary dependency DAG over user-declared daemons.
package depgraph

import (
	"fmt"
	"sort"

	"github.com/sahilm/fuzzy"
)

// ErrDaemonNotFound means a requested id has no config entry. Suggestion may
// be empty if fuzzy matching found nothing close.
type ErrDaemonNotFound struct {
	ID         string
	Suggestion string
}

func (e *ErrDaemonNotFound) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("daemon %q not found, did you mean %q?", e.ID, e.Suggestion)
	}
	return fmt.Sprintf("daemon %q not found", e.ID)
}

// ErrMissingDependency means some daemon's `depends` entry has no config.
type ErrMissingDependency struct {
	Daemon     string
	Dependency string
}

func (e *ErrMissingDependency) Error() string {
	return fmt.Sprintf("daemon %q depends on unconfigured daemon %q", e.Daemon, e.Dependency)
}

// ErrCircularDependency lists the ids that could not be ordered.
type ErrCircularDependency struct {
	Remaining []string
}

func (e *ErrCircularDependency) Error() string {
	return fmt.Sprintf("circular dependency among: %v", e.Remaining)
}

// DependsFunc looks up the configured `depends` list for a qualified id; a
// false second return means the id has no config entry at all.
type DependsFunc func(id string) ([]string, bool)

// Resolve expands requested via a BFS over depends, then emits Kahn levels:
// each level is lexicographically sorted, and every dependency of a node in
// level k appears in some level j < k. configuredIDs is the full set of
// known ids, used only to produce a fuzzy did-you-mean suggestion when a
// requested id is not found.
func Resolve(requested []string, configuredIDs []string, depends DependsFunc) ([][]string, error) {
	expanded := make(map[string]bool)
	var queue []string
	for _, id := range requested {
		if _, ok := depends(id); !ok {
			return nil, &ErrDaemonNotFound{ID: id, Suggestion: suggest(id, configuredIDs)}
		}
		if !expanded[id] {
			expanded[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		deps, _ := depends(cur)
		for _, dep := range deps {
			if _, ok := depends(dep); !ok {
				return nil, &ErrMissingDependency{Daemon: cur, Dependency: dep}
			}
			if !expanded[dep] {
				expanded[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	inDegree := make(map[string]int, len(expanded))
	dependents := make(map[string][]string, len(expanded))
	for id := range expanded {
		deps, _ := depends(id)
		for _, dep := range deps {
			inDegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	remaining := make(map[string]bool, len(expanded))
	for id := range expanded {
		remaining[id] = true
	}

	var current []string
	for id := range remaining {
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}

	var levels [][]string
	for len(current) > 0 {
		sort.Strings(current)
		levels = append(levels, current)
		var next []string
		for _, id := range current {
			delete(remaining, id)
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if len(remaining) > 0 {
		var left []string
		for id := range remaining {
			left = append(left, id)
		}
		sort.Strings(left)
		return nil, &ErrCircularDependency{Remaining: left}
	}
	return levels, nil
}

// ReverseLevels returns levels in reverse order, for stop orchestration:
// dependents are stopped before their dependencies.
func ReverseLevels(levels [][]string) [][]string {
	out := make([][]string, len(levels))
	for i, l := range levels {
		out[len(levels)-1-i] = l
	}
	return out
}

// suggest fuzzy-matches id against the known configured ids, returning the
// best match or "" if the candidate set is empty or nothing scores. When id
// is not a subsequence of any configured id (a typo with extra characters),
// the first configured id that is a subsequence of id is returned instead.
func suggest(id string, configuredIDs []string) string {
	if len(configuredIDs) == 0 {
		return ""
	}
	matches := fuzzy.Find(id, configuredIDs)
	if len(matches) == 0 {
		for _, cand := range configuredIDs {
			if len(fuzzy.Find(cand, []string{id})) > 0 {
				return cand
			}
		}
		return ""
	}
	return configuredIDs[matches[0].Index]
}

// FromConfigMap builds a DependsFunc and a sorted id list from a plain
// id->depends map, the shape the supervisor wiring already has once config
// is merged and namespaced.
func FromConfigMap(cfg map[string][]string) (DependsFunc, []string) {
	ids := make([]string, 0, len(cfg))
	for id := range cfg {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fn := func(id string) ([]string, bool) {
		deps, ok := cfg[id]
		return deps, ok
	}
	return fn, ids
}
