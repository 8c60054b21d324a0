package ports

import (
	"context"

	"github.com/conveyor-dev/conveyor/internal/domain"
)

// RunStore persists agent run state at every lifecycle transition.
type RunStore interface {
	CreateRun(ctx context.Context, run *domain.AgentRun) error
	UpdateRun(ctx context.Context, run *domain.AgentRun) error
	GetRun(ctx context.Context, id string) (*domain.AgentRun, error)
	ListRuns(ctx context.Context) ([]*domain.AgentRun, error)
}
