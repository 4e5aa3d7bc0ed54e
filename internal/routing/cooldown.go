package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/common/logger"
	"github.com/agentcom/agentcom/internal/storage"
)

// cooldownKeyPrefix namespaces cooldown records inside the config table.
const cooldownKeyPrefix = "cooldown:"

// cooldownRecord is the durable backoff entry for one agent id.
type cooldownRecord struct {
	AgentID     string `json:"agent_id"`
	Strikes     int    `json:"strikes"`
	UntilMs     int64  `json:"until_ms"`
	UpdatedAtMs int64  `json:"updated_at_ms"`
}

// CooldownStore tracks violation cooldowns per agent id, persisted so a
// misbehaving agent cannot dodge its backoff by letting the hub restart.
// The ladder escalates on each subsequent offense and caps at the top
// rung.
type CooldownStore struct {
	table  storage.Table
	ladder []time.Duration
	logger *logger.Logger
}

// NewCooldownStore wraps the config table. A nil or empty ladder takes
// the default 30s/60s/300s.
func NewCooldownStore(table storage.Table, ladder []time.Duration, log *logger.Logger) *CooldownStore {
	if len(ladder) == 0 {
		ladder = []time.Duration{30 * time.Second, 60 * time.Second, 300 * time.Second}
	}
	if log == nil {
		log = logger.Default()
	}
	return &CooldownStore{table: table, ladder: ladder, logger: log}
}

// Active returns the remaining cooldown for the agent, if one is in
// effect.
func (c *CooldownStore) Active(ctx context.Context, agentID string) (time.Duration, bool) {
	var rec cooldownRecord
	err := c.table.Get(ctx, cooldownKeyPrefix+agentID, &rec)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			c.logger.Warn("failed to read cooldown record",
				zap.String("agent_id", agentID),
				zap.Error(err))
		}
		return 0, false
	}
	remaining := time.Duration(rec.UntilMs-time.Now().UnixMilli()) * time.Millisecond
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

// Record registers a new offense and returns the cooldown now in effect.
func (c *CooldownStore) Record(ctx context.Context, agentID string) (time.Duration, error) {
	key := cooldownKeyPrefix + agentID

	var rec cooldownRecord
	if err := c.table.Get(ctx, key, &rec); err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return 0, fmt.Errorf("failed to read cooldown record: %w", err)
	}

	rung := rec.Strikes
	if rung >= len(c.ladder) {
		rung = len(c.ladder) - 1
	}
	cooldown := c.ladder[rung]

	now := time.Now().UnixMilli()
	rec.AgentID = agentID
	rec.Strikes++
	rec.UntilMs = now + cooldown.Milliseconds()
	rec.UpdatedAtMs = now

	if err := c.table.Put(ctx, key, rec); err != nil {
		return 0, fmt.Errorf("failed to persist cooldown record: %w", err)
	}
	c.logger.Warn("agent cooldown recorded",
		zap.String("agent_id", agentID),
		zap.Int("strikes", rec.Strikes),
		zap.Duration("cooldown", cooldown))
	return cooldown, nil
}

// Clear removes the agent's cooldown record.
func (c *CooldownStore) Clear(ctx context.Context, agentID string) error {
	err := c.table.Delete(ctx, cooldownKeyPrefix+agentID)
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return err
	}
	return nil
}
