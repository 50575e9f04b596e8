package artifact

import (
	"context"
	"log/slog"
	"slices"
)

// Resolution is the validated structure of a spec set.
type Resolution struct {
	// Waves partitions every artifact; for each edge u requires v, v sits in an earlier wave than u.
	Waves [][]string
	// Roots are artifacts nothing depends on.
	Roots []string
	// Leaves are artifacts with no requirements.
	Leaves []string
	// Orphans are retained but unreachable from the declared roots.
	Orphans []string
	// AmbiguousRoot is set when more than one artifact has no dependents.
	AmbiguousRoot bool
}

type resolveOptions struct {
	roots []string
}

// Option configures resolution.
type Option func(*resolveOptions)

// WithRoots declares the goal roots used for orphan detection.
func WithRoots(ids ...string) Option {
	return func(o *resolveOptions) {
		o.roots = append(o.roots, ids...)
	}
}

// Resolve validates specs into a DAG and partitions it into waves.
// Structural problems are returned as *DuplicateArtifactError,
// *DanglingReferenceError or *CycleError. Orphans and ambiguous roots are
// logged and reported on the Resolution, never rejected.
func Resolve(ctx context.Context, specs []Spec, opts ...Option) (*Resolution, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	idx, err := index(specs)
	if err != nil {
		return nil, err
	}
	res, _, err := resolveIndex(idx, o)
	if err != nil {
		return nil, err
	}

	if len(res.Orphans) > 0 {
		slog.WarnContext(ctx, "graph has orphan artifacts",
			"orphans", res.Orphans,
			"artifact_count", len(specs))
	}
	if res.AmbiguousRoot {
		slog.InfoContext(ctx, "graph has multiple candidate roots",
			"roots", res.Roots)
	}

	return res, nil
}

type specIndex struct {
	order []string
	specs map[string]Spec
}

func index(specs []Spec) (specIndex, error) {
	idx := specIndex{
		order: make([]string, 0, len(specs)),
		specs: make(map[string]Spec, len(specs)),
	}
	for _, s := range specs {
		if _, dup := idx.specs[s.ID]; dup {
			return specIndex{}, &DuplicateArtifactError{ID: s.ID}
		}
		idx.specs[s.ID] = s.clone()
		idx.order = append(idx.order, s.ID)
	}
	return idx, nil
}

// resolveIndex returns the resolution plus the dependents adjacency.
func resolveIndex(idx specIndex, o resolveOptions) (*Resolution, map[string][]string, error) {
	for _, id := range idx.order {
		for _, req := range idx.specs[id].Requires {
			if _, ok := idx.specs[req]; !ok {
				return nil, nil, &DanglingReferenceError{MissingID: req, ReferencedBy: id}
			}
		}
	}
	for _, root := range o.roots {
		if _, ok := idx.specs[root]; !ok {
			return nil, nil, &DanglingReferenceError{MissingID: root, ReferencedBy: "declared roots"}
		}
	}

	if path := findCycle(idx); path != nil {
		return nil, nil, &CycleError{Path: path}
	}

	dependents := make(map[string][]string, len(idx.specs))
	for _, id := range idx.order {
		for _, req := range idx.specs[id].Requires {
			dependents[req] = append(dependents[req], id)
		}
	}
	for id := range dependents {
		slices.Sort(dependents[id])
	}

	res := &Resolution{Waves: layer(idx, dependents)}
	for _, id := range sortedIDs(idx) {
		if len(dependents[id]) == 0 {
			res.Roots = append(res.Roots, id)
		}
		if idx.specs[id].IsLeaf() {
			res.Leaves = append(res.Leaves, id)
		}
	}
	res.AmbiguousRoot = len(res.Roots) > 1
	res.Orphans = orphans(idx, dependents, o.roots)

	return res, dependents, nil
}

const (
	unvisited = iota
	onStack
	done
)

// findCycle runs a depth-first search with an on-stack marker and returns the
// artifacts on the first back-edge cycle, in requires order.
func findCycle(idx specIndex) []string {
	state := make(map[string]int, len(idx.specs))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = onStack
		stack = append(stack, id)
		for _, req := range idx.specs[id].Requires {
			switch state[req] {
			case onStack:
				start := slices.Index(stack, req)
				return slices.Clone(stack[start:])
			case unvisited:
				if path := visit(req); path != nil {
					return path
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, id := range sortedIDs(idx) {
		if state[id] == unvisited {
			if path := visit(id); path != nil {
				return path
			}
		}
	}
	return nil
}

// layer performs Kahn-style layering. Artifacts within a wave are sorted so
// the same spec set always yields the same partition.
func layer(idx specIndex, dependents map[string][]string) [][]string {
	pending := make(map[string]int, len(idx.specs))
	var current []string
	for _, id := range idx.order {
		pending[id] = len(idx.specs[id].Requires)
		if pending[id] == 0 {
			current = append(current, id)
		}
	}

	var waves [][]string
	for len(current) > 0 {
		slices.Sort(current)
		waves = append(waves, current)

		var next []string
		for _, id := range current {
			for _, dep := range dependents[id] {
				pending[dep]--
				if pending[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}
	return waves
}

// orphans walks requires edges back from the declared roots. Without declared
// roots, isolated artifacts in a graph that has edges are orphans.
func orphans(idx specIndex, dependents map[string][]string, roots []string) []string {
	var out []string
	if len(roots) == 0 {
		hasEdges := len(dependents) > 0
		if !hasEdges {
			return nil
		}
		for _, id := range sortedIDs(idx) {
			if idx.specs[id].IsLeaf() && len(dependents[id]) == 0 {
				out = append(out, id)
			}
		}
		return out
	}

	connected := make(map[string]bool, len(idx.specs))
	queue := slices.Clone(roots)
	for _, r := range roots {
		connected[r] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, req := range idx.specs[id].Requires {
			if !connected[req] {
				connected[req] = true
				queue = append(queue, req)
			}
		}
	}

	for _, id := range sortedIDs(idx) {
		if !connected[id] {
			out = append(out, id)
		}
	}
	return out
}

func sortedIDs(idx specIndex) []string {
	ids := slices.Clone(idx.order)
	slices.Sort(ids)
	return ids
}
