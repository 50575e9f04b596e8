package artifact

// Limits bounds graph size. A zero field means unbounded.
type Limits struct {
	MaxArtifacts int
	MaxDepth     int
}

// CheckLimits reports the first limit g violates.
func CheckLimits(g *Graph, l Limits) error {
	if l.MaxArtifacts > 0 && g.Len() > l.MaxArtifacts {
		return &GraphExplosionError{Count: g.Len(), Limit: l.MaxArtifacts}
	}
	if l.MaxDepth > 0 && g.Depth() > l.MaxDepth {
		return &DepthExceededError{Depth: g.Depth(), Limit: l.MaxDepth}
	}
	return nil
}
