package discovery

import "fmt"

type WeaknessKind string

const (
	WeaknessParallelism WeaknessKind = "low_parallelism"
	WeaknessBalance     WeaknessKind = "poor_balance"
	WeaknessConflicts   WeaknessKind = "file_conflicts"
)

// Weakness is the single structural problem a refinement round targets.
type Weakness struct {
	Kind        WeaknessKind `json:"kind"`
	Value       float64      `json:"value"`
	Target      float64      `json:"target"`
	Description string       `json:"description"`
}

func (w Weakness) String() string {
	if w.Description != "" {
		return w.Description
	}
	return fmt.Sprintf("%s: %.2f (target %.2f)", w.Kind, w.Value, w.Target)
}
