// Package queuestats implements the read-only Queue Statistics Probe.
package queuestats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

// Probe exposes broker queue depths for operator/UI consumption. Best
// effort, no caching guarantees.
type Probe struct {
	stats domain.QueueStats
}

// New constructs a Probe.
func New(stats domain.QueueStats) *Probe {
	return &Probe{stats: stats}
}

// GetQueueCount returns the current depth of queueName.
func (p *Probe) GetQueueCount(ctx context.Context, queueName string) (int, error) {
	count, err := p.stats.QueueCount(ctx, queueName)
	if err != nil {
		return 0, fmt.Errorf("op=queuestats.Probe.GetQueueCount queue=%s: %w", queueName, err)
	}
	return count, nil
}

// RunRefresher polls GetQueueCount for every name in queues on interval,
// keeping the queue_depth gauge warm even when nothing is hitting
// GET /queues/{name}/count. Errors are logged, never fatal; it returns once
// ctx is canceled.
func (p *Probe) RunRefresher(ctx context.Context, queues []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, q := range queues {
				if _, err := p.GetQueueCount(ctx, q); err != nil {
					slog.Warn("queue stats refresh failed", slog.String("queue", q), slog.Any("error", err))
				}
			}
		}
	}
}
