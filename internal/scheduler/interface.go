package scheduler

import (
	"context"
	"time"

	"github.com/mattjoyce/elasticd/internal/elastic"
)

//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks github.com/mattjoyce/elasticd/internal/scheduler Pinger,JournalPruner

// Pinger pings every registered plugin with the agents it owns.
type Pinger interface {
	ServerPingAll(ctx context.Context, agentsFor elastic.AgentsFunc, limit int) error
}

// JournalPruner removes journal entries older than a retention window.
type JournalPruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}
