package routing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the startup routing state loaded from a YAML file: the active
// repo set and the initial endpoint table.
type Seed struct {
	Repos     []string   `yaml:"repos"`
	Endpoints []Endpoint `yaml:"endpoints"`
}

// LoadSeed reads and parses the seed file.
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse routing seed: %w", err)
	}
	for i, ep := range seed.Endpoints {
		if ep.Host == "" {
			return nil, fmt.Errorf("routing seed endpoint %d: host is required", i)
		}
		if ep.Tier != "" && !ValidTier(ep.Tier) {
			return nil, fmt.Errorf("routing seed endpoint %s: unknown tier %q", ep.Host, ep.Tier)
		}
	}
	return &seed, nil
}
