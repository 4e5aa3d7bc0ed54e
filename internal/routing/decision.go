// Package routing decides where a task should run: the resolver picks an
// endpoint tier and target, the repo registry gates repo-scoped tasks, the
// limiter throttles per-agent assignment, and the cooldown store backs the
// session violation ladder.
package routing

// Target types a routing decision can select.
const (
	TargetSidecar     = "sidecar"
	TargetLocalModel  = "local_model"
	TargetRemoteModel = "remote_model"
)

// Complexity tiers, ordered trivial < standard < complex.
const (
	TierTrivial  = "trivial"
	TierStandard = "standard"
	TierComplex  = "complex"
)

// ValidTier reports whether the name is a known tier.
func ValidTier(tier string) bool {
	switch tier {
	case TierTrivial, TierStandard, TierComplex:
		return true
	}
	return false
}

// NextTier returns the tier one step up. ok is false at the top.
func NextTier(tier string) (string, bool) {
	switch tier {
	case TierTrivial:
		return TierStandard, true
	case TierStandard:
		return TierComplex, true
	}
	return "", false
}

// costTiers projects a complexity tier onto a cost estimate.
var costTiers = map[string]string{
	TierTrivial:  "low",
	TierStandard: "medium",
	TierComplex:  "high",
}

// CostTier returns the cost estimate for a complexity tier.
func CostTier(tier string) string {
	return costTiers[tier]
}

// Decision is the resolver's verdict, stored on the task before
// assignment and pushed to the agent inside task_assign.
type Decision struct {
	EffectiveTier        string `json:"effective_tier"`
	TargetType           string `json:"target_type"`
	SelectedEndpoint     string `json:"selected_endpoint,omitempty"`
	SelectedModel        string `json:"selected_model,omitempty"`
	FallbackUsed         bool   `json:"fallback_used,omitempty"`
	CandidateCount       int    `json:"candidate_count"`
	ClassificationReason string `json:"classification_reason,omitempty"`
	EstimatedCostTier    string `json:"estimated_cost_tier,omitempty"`
}

// Fallback signals that no endpoint serves the classified tier right now
// and the next tier should be retried after a grace period. The scheduler
// arms a timer and still attempts capability-based assignment meanwhile.
type Fallback struct {
	Tier   string
	Reason string
}
