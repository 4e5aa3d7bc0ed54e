package routing

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTier(t *testing.T) {
	tests := []struct {
		name string
		req  ResolveRequest
		want string
	}{
		{"metadata hint wins", ResolveRequest{Description: strings.Repeat("x", 5000), Metadata: map[string]any{"tier": "trivial"}}, TierTrivial},
		{"invalid hint ignored", ResolveRequest{Description: "short", Metadata: map[string]any{"tier": "gigantic"}}, TierTrivial},
		{"short description is trivial", ResolveRequest{Description: "fix typo"}, TierTrivial},
		{"medium description is standard", ResolveRequest{Description: strings.Repeat("x", 500)}, TierStandard},
		{"long description is complex", ResolveRequest{Description: strings.Repeat("x", 3000)}, TierComplex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, reason := ClassifyTier(tt.req)
			assert.Equal(t, tt.want, tier)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestStaticResolverSelectsEndpoint(t *testing.T) {
	r := NewStaticResolver()
	endpoints := []Endpoint{
		{Host: "b.local:8080", Model: "small", Tier: TierTrivial, TargetType: TargetLocalModel},
		{Host: "a.local:8080", Model: "small", Tier: TierTrivial, TargetType: TargetLocalModel},
	}

	decision, fallback, err := r.Resolve(context.Background(), ResolveRequest{Description: "quick fix"}, endpoints)
	require.NoError(t, err)
	require.Nil(t, fallback)
	require.NotNil(t, decision)
	assert.Equal(t, TierTrivial, decision.EffectiveTier)
	assert.Equal(t, TargetLocalModel, decision.TargetType)
	assert.Equal(t, 2, decision.CandidateCount)
	assert.Equal(t, "low", decision.EstimatedCostTier)
}

func TestStaticResolverSkipsUnhealthyEndpoints(t *testing.T) {
	r := NewStaticResolver()
	endpoints := []Endpoint{
		{Host: "a.local:8080", Tier: TierTrivial, Status: EndpointDown},
		{Host: "b.local:8080", Tier: TierTrivial, Status: EndpointHealthy, TargetType: TargetLocalModel},
	}

	decision, fallback, err := r.Resolve(context.Background(), ResolveRequest{Description: "quick fix"}, endpoints)
	require.NoError(t, err)
	require.Nil(t, fallback)
	require.NotNil(t, decision)
	assert.Equal(t, "b.local:8080", decision.SelectedEndpoint)
	assert.Equal(t, 1, decision.CandidateCount)
}

func TestStaticResolverFallbackToNextTier(t *testing.T) {
	r := NewStaticResolver()
	// Nothing at trivial, something at standard: a fallback signal.
	endpoints := []Endpoint{
		{Host: "big.local:8080", Tier: TierStandard, TargetType: TargetLocalModel},
	}

	decision, fallback, err := r.Resolve(context.Background(), ResolveRequest{Description: "quick fix"}, endpoints)
	require.NoError(t, err)
	require.Nil(t, decision)
	require.NotNil(t, fallback)
	assert.Equal(t, TierStandard, fallback.Tier)
}

func TestStaticResolverDegradesToSidecar(t *testing.T) {
	r := NewStaticResolver()

	decision, fallback, err := r.Resolve(context.Background(), ResolveRequest{Description: "quick fix"}, nil)
	require.NoError(t, err)
	require.Nil(t, fallback)
	require.NotNil(t, decision)
	assert.Equal(t, TargetSidecar, decision.TargetType)
	assert.True(t, decision.FallbackUsed)
	assert.Zero(t, decision.CandidateCount)
}

func TestNextTier(t *testing.T) {
	next, ok := NextTier(TierTrivial)
	assert.True(t, ok)
	assert.Equal(t, TierStandard, next)

	next, ok = NextTier(TierStandard)
	assert.True(t, ok)
	assert.Equal(t, TierComplex, next)

	_, ok = NextTier(TierComplex)
	assert.False(t, ok)
}
