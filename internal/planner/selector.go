package planner

import (
	"fmt"
	"strings"
)

// Select returns the index of the best candidate, or -1 for an empty list.
// Higher score wins; ties go to lower depth, then fewer file conflicts,
// then generation order.
func Select(cands []Candidate) int {
	best := -1
	for i, c := range cands {
		if best < 0 || better(c.Metrics, cands[best].Metrics) {
			best = i
		}
	}
	return best
}

func better(a, b Metrics) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Depth != b.Depth {
		return a.Depth < b.Depth
	}
	return a.FileConflicts < b.FileConflicts
}

// Rationale explains which term dominated the winner's score.
func Rationale(m Metrics, w Weights, total int) string {
	parallelism := 100 * w.Parallelism * m.ParallelismFactor
	balance := 0.0
	if m.BalanceFactor > 0 {
		balance = 100 * w.Balance / m.BalanceFactor
	}

	var b strings.Builder
	fmt.Fprintf(&b, "best of %d candidates (score %.1f): ", total, m.Score)
	if parallelism >= balance {
		fmt.Fprintf(&b, "parallelism dominated (%.1f points, %d artifacts in %d waves)", parallelism, m.ArtifactCount, m.EstimatedWaves)
	} else {
		fmt.Fprintf(&b, "wave balance dominated (%.1f points, balance factor %.2f)", balance, m.BalanceFactor)
	}
	if p := w.Depth * float64(m.Depth); p > 0 {
		fmt.Fprintf(&b, "; depth %d cost %.1f", m.Depth, p)
	}
	if p := w.Conflicts * float64(m.FileConflicts); p > 0 {
		fmt.Fprintf(&b, "; %d file conflicts cost %.1f", m.FileConflicts, p)
	}
	return b.String()
}
