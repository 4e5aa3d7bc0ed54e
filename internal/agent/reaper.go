package agent

import (
	"context"
	"time"
)

// RunReaper periodically disconnects agents whose heartbeats have gone
// stale. Blocks until ctx is cancelled.
func (r *Registry) RunReaper(ctx context.Context) error {
	ticker := time.NewTicker(r.reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.reapOnce(ctx)
		}
	}
}

func (r *Registry) reapOnce(ctx context.Context) {
	cutoff := nowMs() - r.staleThreshold.Milliseconds()

	r.mu.Lock()
	var stale []string
	for id, a := range r.agents {
		if a.State == StateOffline {
			continue
		}
		if a.LastSeenMs > 0 && a.LastSeenMs < cutoff {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		if err := r.Disconnect(ctx, id, "stale_heartbeat"); err != nil {
			r.logger.WithAgentID(id).WithError(err).Warn("Failed to reap stale agent")
		}
	}
}
