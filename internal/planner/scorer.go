// Package planner implements harmonic planning: several candidate graphs
// are generated concurrently, scored on structure, and the winner is
// refined for as long as refinement keeps improving it.
package planner

import (
	"basegraph.app/harmony/internal/artifact"
)

// Weights of the composite score. Parallelism and Balance are fractions of
// the 100 point structural budget; Depth and Conflicts are points deducted
// per unit.
type Weights struct {
	Parallelism float64
	Balance     float64
	Depth       float64
	Conflicts   float64
}

func DefaultWeights() Weights {
	return Weights{Parallelism: 0.40, Balance: 0.30, Depth: 5, Conflicts: 15}
}

// Metrics is the structural assessment of one graph.
type Metrics struct {
	Depth             int     `json:"depth"`
	Width             int     `json:"width"`
	LeafCount         int     `json:"leaf_count"`
	ArtifactCount     int     `json:"artifact_count"`
	ParallelismFactor float64 `json:"parallelism_factor"`
	BalanceFactor     float64 `json:"balance_factor"`
	FileConflicts     int     `json:"file_conflicts"`
	EstimatedWaves    int     `json:"estimated_waves"`
	Score             float64 `json:"score"`
}

// Fields flattens the metrics for event payloads.
func (m Metrics) Fields() map[string]any {
	return map[string]any{
		"depth":              m.Depth,
		"width":              m.Width,
		"leaf_count":         m.LeafCount,
		"artifact_count":     m.ArtifactCount,
		"parallelism_factor": m.ParallelismFactor,
		"balance_factor":     m.BalanceFactor,
		"file_conflicts":     m.FileConflicts,
		"estimated_waves":    m.EstimatedWaves,
		"score":              m.Score,
	}
}

// Scorer is a pure function of graph structure.
type Scorer struct {
	weights Weights
}

func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

func (s *Scorer) Weights() Weights {
	return s.weights
}

func (s *Scorer) Score(g *artifact.Graph) Metrics {
	waves := g.Waves()
	m := Metrics{
		Depth:          g.Depth(),
		Width:          g.Width(),
		LeafCount:      len(g.Leaves()),
		ArtifactCount:  g.Len(),
		EstimatedWaves: len(waves),
		FileConflicts:  fileConflicts(g),
		BalanceFactor:  balance(waves),
	}
	if m.ArtifactCount > 0 {
		m.ParallelismFactor = min(max(1-float64(m.EstimatedWaves)/float64(m.ArtifactCount), 0), 1)
	}

	w := s.weights
	m.Score = 100*(w.Parallelism*m.ParallelismFactor+w.Balance*(1/m.BalanceFactor)) -
		w.Depth*float64(m.Depth) -
		w.Conflicts*float64(m.FileConflicts)
	return m
}

// balance is the largest wave over the mean wave; 1.0 is perfectly even.
func balance(waves [][]string) float64 {
	if len(waves) == 0 {
		return 1
	}
	total, largest := 0, 0
	for _, w := range waves {
		total += len(w)
		largest = max(largest, len(w))
	}
	mean := float64(total) / float64(len(waves))
	return float64(largest) / mean
}

// fileConflicts counts, for every location produced by k > 1 artifacts,
// the k-1 artifacts beyond the first.
func fileConflicts(g *artifact.Graph) int {
	byLocation := make(map[string]int)
	for _, s := range g.Specs() {
		if s.ProducesLocation != "" {
			byLocation[s.ProducesLocation]++
		}
	}
	conflicts := 0
	for _, n := range byLocation {
		if n > 1 {
			conflicts += n - 1
		}
	}
	return conflicts
}
