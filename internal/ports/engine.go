package ports

import (
	"context"

	"github.com/conveyor-dev/conveyor/internal/env"
)

// ExecutionEngine runs one agent invocation to completion: it receives an
// opaque prompt document plus a typed environment binding, and populates the
// binding's declared output slots before returning. The engine is
// non-deterministic and potentially long-running; callers bound it with the
// context and never retry automatically.
type ExecutionEngine interface {
	Run(ctx context.Context, prompt string, binding *env.Binding) error
}

// Validator is the single test gate shared by the deterministic pipeline and
// the agent path. It is the only pipeline capability a workspace receives.
type Validator interface {
	Test(ctx context.Context, sourceDir string) (string, error)
}
