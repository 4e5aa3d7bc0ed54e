package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/common/config"
	"github.com/agentcom/agentcom/internal/common/logger"
	"github.com/agentcom/agentcom/internal/routing"
	"github.com/agentcom/agentcom/internal/storage"
)

// routingStack bundles the routing collaborators the scheduler and the
// session layer share.
type routingStack struct {
	Repos     *routing.RepoRegistry
	Endpoints *routing.EndpointTable
	Resolver  routing.Resolver
	Limiter   *routing.Limiter
	Cooldowns *routing.CooldownStore
}

func provideRouting(cfg *config.Config, store storage.Store, log *logger.Logger) (*routingStack, error) {
	configTable, err := store.Table(storage.TableConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open config table: %w", err)
	}

	repos := routing.NewRepoRegistry()
	endpoints := routing.NewEndpointTable()

	if cfg.Routing.SeedPath != "" {
		seed, err := routing.LoadSeed(cfg.Routing.SeedPath)
		if err != nil {
			return nil, err
		}
		repos.Load(seed.Repos)
		for _, ep := range seed.Endpoints {
			endpoints.Upsert(ep)
		}
		log.Info("Loaded routing seed",
			zap.String("path", cfg.Routing.SeedPath),
			zap.Int("repos", len(seed.Repos)),
			zap.Int("endpoints", len(seed.Endpoints)))
	}

	return &routingStack{
		Repos:     repos,
		Endpoints: endpoints,
		Resolver:  routing.NewStaticResolver(),
		Limiter:   routing.NewLimiter(cfg.Routing.AgentRatePerSecond, cfg.Routing.AgentBurst),
		Cooldowns: routing.NewCooldownStore(configTable, cfg.Coordination.BackoffLadder(), log),
	}, nil
}
