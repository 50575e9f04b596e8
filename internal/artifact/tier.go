package artifact

// ModelTier picks how capable a model should materialize an artifact.
type ModelTier string

const (
	TierSmall  ModelTier = "small"
	TierMedium ModelTier = "medium"
	TierLarge  ModelTier = "large"
)

// SelectModelTier routes leaves to the small tier, light convergence nodes to
// medium and heavy convergence nodes to large.
func SelectModelTier(g *Graph, id string) ModelTier {
	depth, err := g.DepthOf(id)
	if err != nil || depth == 0 {
		return TierSmall
	}
	if g.FanIn(id) <= 2 {
		return TierMedium
	}
	return TierLarge
}
