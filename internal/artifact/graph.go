package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// Graph is a validated, immutable artifact DAG. Derived properties are
// computed once when the snapshot is built.
type Graph struct {
	idx        specIndex
	roots      []string
	res        *Resolution
	dependents map[string][]string
	waveOf     map[string]int
}

// NewGraph validates specs and builds a snapshot.
func NewGraph(ctx context.Context, specs []Spec, opts ...Option) (*Graph, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}
	idx, err := index(specs)
	if err != nil {
		return nil, err
	}
	g, err := build(idx, o)
	if err != nil {
		return nil, err
	}
	if len(g.res.Orphans) > 0 {
		slog.WarnContext(ctx, "graph has orphan artifacts",
			"orphans", g.res.Orphans,
			"artifact_count", g.Len())
	}
	return g, nil
}

func build(idx specIndex, o resolveOptions) (*Graph, error) {
	res, dependents, err := resolveIndex(idx, o)
	if err != nil {
		return nil, err
	}
	waveOf := make(map[string]int, len(idx.specs))
	for i, wave := range res.Waves {
		for _, id := range wave {
			waveOf[id] = i
		}
	}
	return &Graph{
		idx:        idx,
		roots:      normalizeIDs(o.roots),
		res:        res,
		dependents: dependents,
		waveOf:     waveOf,
	}, nil
}

// With returns a new snapshot containing g plus specs. Specs whose id is
// already present are skipped. g is never modified; a rejected insertion
// returns the structural error and leaves the caller holding g.
func (g *Graph) With(ctx context.Context, specs ...Spec) (*Graph, error) {
	merged := specIndex{
		order: slices.Clone(g.idx.order),
		specs: make(map[string]Spec, len(g.idx.specs)+len(specs)),
	}
	for id, s := range g.idx.specs {
		merged.specs[id] = s
	}

	added := 0
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if g.Has(s.ID) {
			slog.DebugContext(ctx, "skipping existing artifact on insert", "artifact_id", s.ID)
			continue
		}
		if seen[s.ID] {
			return nil, &DuplicateArtifactError{ID: s.ID}
		}
		seen[s.ID] = true
		merged.specs[s.ID] = s.clone()
		merged.order = append(merged.order, s.ID)
		added++
	}
	if added == 0 {
		return g, nil
	}

	return build(merged, resolveOptions{roots: g.roots})
}

func (g *Graph) Has(id string) bool {
	_, ok := g.idx.specs[id]
	return ok
}

// Get returns a copy of the spec with the given id.
func (g *Graph) Get(id string) (Spec, bool) {
	s, ok := g.idx.specs[id]
	if !ok {
		return Spec{}, false
	}
	return s.clone(), true
}

// Specs returns copies of every spec in insertion order.
func (g *Graph) Specs() []Spec {
	out := make([]Spec, 0, len(g.idx.order))
	for _, id := range g.idx.order {
		out = append(out, g.idx.specs[id].clone())
	}
	return out
}

// IDs returns artifact ids in insertion order.
func (g *Graph) IDs() []string {
	return slices.Clone(g.idx.order)
}

func (g *Graph) Len() int {
	return len(g.idx.order)
}

// Waves returns the execution layering. The returned slices are copies.
func (g *Graph) Waves() [][]string {
	out := make([][]string, len(g.res.Waves))
	for i, w := range g.res.Waves {
		out[i] = slices.Clone(w)
	}
	return out
}

// Resolution returns a copy of the resolver output for this snapshot.
func (g *Graph) Resolution() Resolution {
	return Resolution{
		Waves:         g.Waves(),
		Roots:         slices.Clone(g.res.Roots),
		Leaves:        slices.Clone(g.res.Leaves),
		Orphans:       slices.Clone(g.res.Orphans),
		AmbiguousRoot: g.res.AmbiguousRoot,
	}
}

// DepthOf returns the wave index of id, which is the length of the longest
// requires chain below it.
func (g *Graph) DepthOf(id string) (int, error) {
	w, ok := g.waveOf[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrArtifactNotFound, id)
	}
	return w, nil
}

// Depth is the longest dependency chain measured in edges.
func (g *Graph) Depth() int {
	if len(g.res.Waves) == 0 {
		return 0
	}
	return len(g.res.Waves) - 1
}

// Width is the size of the largest wave.
func (g *Graph) Width() int {
	width := 0
	for _, w := range g.res.Waves {
		width = max(width, len(w))
	}
	return width
}

func (g *Graph) Leaves() []string        { return slices.Clone(g.res.Leaves) }
func (g *Graph) Roots() []string         { return slices.Clone(g.res.Roots) }
func (g *Graph) Orphans() []string       { return slices.Clone(g.res.Orphans) }
func (g *Graph) AmbiguousRoot() bool     { return g.res.AmbiguousRoot }
func (g *Graph) DeclaredRoots() []string { return slices.Clone(g.roots) }

// Dependents returns the artifacts that directly require id.
func (g *Graph) Dependents(id string) []string {
	return slices.Clone(g.dependents[id])
}

// TransitiveDependents returns every artifact that directly or indirectly
// requires id, sorted.
func (g *Graph) TransitiveDependents(id string) []string {
	seen := make(map[string]bool)
	queue := slices.Clone(g.dependents[id])
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		queue = append(queue, g.dependents[next]...)
	}
	out := make([]string, 0, len(seen))
	for dep := range seen {
		out = append(out, dep)
	}
	slices.Sort(out)
	return out
}

// FanIn is the number of direct requirements of id.
func (g *Graph) FanIn(id string) int {
	return len(g.idx.specs[id].Requires)
}

// FanOut is the number of artifacts that directly require id.
func (g *Graph) FanOut(id string) int {
	return len(g.dependents[id])
}

// Subgraph returns the closure of ids over requires as a new snapshot.
func (g *Graph) Subgraph(ids ...string) (*Graph, error) {
	keep := make(map[string]bool, len(ids))
	queue := slices.Clone(ids)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if keep[id] {
			continue
		}
		s, ok := g.idx.specs[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, id)
		}
		keep[id] = true
		queue = append(queue, s.Requires...)
	}

	sub := specIndex{specs: make(map[string]Spec, len(keep))}
	for _, id := range g.idx.order {
		if keep[id] {
			sub.order = append(sub.order, id)
			sub.specs[id] = g.idx.specs[id]
		}
	}
	return build(sub, resolveOptions{})
}
