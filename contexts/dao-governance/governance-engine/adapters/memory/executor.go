package memory

import (
	"context"
	"sync"

	"agora/contexts/dao-governance/governance-engine/domain/entities"
	"agora/contexts/dao-governance/governance-engine/ports"
)

// StubExecutor is the in-process decision executor used for local wiring and
// tests. It records every invocation so idempotence can be asserted.
type StubExecutor struct {
	mu      sync.Mutex
	calls   int
	Outcome ports.ExecutionOutcome
	Err     error
}

func NewStubExecutor() *StubExecutor {
	return &StubExecutor{
		Outcome: ports.ExecutionOutcome{
			Success:           true,
			ExternalReference: "stub-execution",
			Output:            "executed in-process",
		},
	}
}

func (e *StubExecutor) Execute(ctx context.Context, _ entities.ExecutionSpec) (ports.ExecutionOutcome, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return ports.ExecutionOutcome{}, err
	}
	if e.Err != nil {
		return ports.ExecutionOutcome{}, e.Err
	}
	return e.Outcome, nil
}

// Calls returns how many times Execute ran.
func (e *StubExecutor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

var _ ports.DecisionExecutor = (*StubExecutor)(nil)
