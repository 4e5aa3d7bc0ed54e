package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoRegistry(t *testing.T) {
	r := NewRepoRegistry()

	// Not repo-scoped is always active.
	assert.True(t, r.IsActive(""))
	assert.False(t, r.IsActive("core"))

	r.Activate("core")
	assert.True(t, r.IsActive("core"))

	r.Deactivate("core")
	assert.False(t, r.IsActive("core"))

	r.Load([]string{"core", "docs", ""})
	assert.Equal(t, []string{"core", "docs"}, r.List())
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	seedYAML := `repos:
  - core
  - docs
endpoints:
  - host: gpu1.local:8080
    model: small-coder
    tier: trivial
  - host: gpu2.local:8080
    model: big-coder
    tier: complex
    targetType: local_model
`
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"core", "docs"}, seed.Repos)
	require.Len(t, seed.Endpoints, 2)
	assert.Equal(t, "gpu1.local:8080", seed.Endpoints[0].Host)
	assert.Equal(t, TierTrivial, seed.Endpoints[0].Tier)
}

func TestLoadSeedRejectsBadTier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoints:\n  - host: x\n    tier: huge\n"), 0o644))

	_, err := LoadSeed(path)
	assert.Error(t, err)
}

func TestEndpointTable(t *testing.T) {
	table := NewEndpointTable()
	table.Upsert(Endpoint{Host: "b.local", Tier: TierTrivial})
	table.Upsert(Endpoint{Host: "a.local", Tier: TierStandard})

	snap := table.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a.local", snap[0].Host)
	// TargetType defaults on upsert.
	assert.Equal(t, TargetLocalModel, snap[0].TargetType)

	assert.True(t, table.SetStatus("a.local", EndpointDown))
	assert.False(t, table.SetStatus("missing", EndpointDown))

	snap = table.Snapshot()
	assert.False(t, snap[0].Healthy())
	assert.True(t, snap[1].Healthy())
}
