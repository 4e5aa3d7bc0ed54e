package routing

import (
	"context"
	"fmt"
)

// Description length boundaries for tier classification when the task
// carries no explicit hint.
const (
	trivialMaxLen  = 200
	standardMaxLen = 2000
)

// ResolveRequest carries the task attributes the resolver may consult.
// Keeping it a plain struct avoids a dependency on the queue package.
type ResolveRequest struct {
	TaskID      string
	Description string
	Metadata    map[string]any
}

// Resolver classifies a task and selects an endpoint for it. Exactly one
// of the three results is non-nil: a concrete Decision, a Fallback signal,
// or an error.
type Resolver interface {
	Resolve(ctx context.Context, req ResolveRequest, endpoints []Endpoint) (*Decision, *Fallback, error)
}

// StaticResolver is the in-tree config-driven resolver. It honors an
// explicit tier hint in task metadata, otherwise classifies by description
// length, then picks the first healthy endpoint serving that tier. The
// production resolver is an external collaborator behind the same
// interface.
type StaticResolver struct{}

// NewStaticResolver creates the default resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{}
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(ctx context.Context, req ResolveRequest, endpoints []Endpoint) (*Decision, *Fallback, error) {
	tier, reason := ClassifyTier(req)

	candidates := make([]Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.Healthy() && ep.Tier == tier {
			candidates = append(candidates, ep)
		}
	}

	if len(candidates) > 0 {
		selected := candidates[0]
		return &Decision{
			EffectiveTier:        tier,
			TargetType:           selected.TargetType,
			SelectedEndpoint:     selected.Host,
			SelectedModel:        selected.Model,
			CandidateCount:       len(candidates),
			ClassificationReason: reason,
			EstimatedCostTier:    costTiers[tier],
		}, nil, nil
	}

	// Nothing serves this tier. If a higher tier could, signal a fallback
	// so the scheduler retries there after the grace period.
	if next, ok := NextTier(tier); ok && anyHealthyAtOrAbove(endpoints, next) {
		return nil, &Fallback{
			Tier:   next,
			Reason: fmt.Sprintf("no healthy endpoint at tier %s", tier),
		}, nil
	}

	// No model endpoint anywhere: degrade to the sidecar path, where
	// capability matching alone decides.
	return &Decision{
		EffectiveTier:        tier,
		TargetType:           TargetSidecar,
		FallbackUsed:         true,
		CandidateCount:       0,
		ClassificationReason: reason,
		EstimatedCostTier:    costTiers[tier],
	}, nil, nil
}

// ClassifyTier returns the tier for a task and the reason it was chosen:
// an explicit metadata hint wins, otherwise description length decides.
func ClassifyTier(req ResolveRequest) (string, string) {
	if hint, ok := req.Metadata["tier"].(string); ok && ValidTier(hint) {
		return hint, "metadata_hint"
	}
	switch n := len(req.Description); {
	case n <= trivialMaxLen:
		return TierTrivial, "description_length"
	case n <= standardMaxLen:
		return TierStandard, "description_length"
	default:
		return TierComplex, "description_length"
	}
}

func anyHealthyAtOrAbove(endpoints []Endpoint, tier string) bool {
	for t, ok := tier, true; ok; t, ok = NextTier(t) {
		for _, ep := range endpoints {
			if ep.Healthy() && ep.Tier == t {
				return true
			}
		}
	}
	return false
}
