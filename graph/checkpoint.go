package graph

import "context"

// Checkpointer is the pluggable save/load/list/delete contract (§4.5).
// Implementations live in graph/checkpoint; this package only depends on
// the interface so the core executor never imports a concrete storage
// backend.
type Checkpointer interface {
	Save(ctx context.Context, executionID string, state State, label string) error
	Load(ctx context.Context, executionID string) (State, bool, error)
	LoadByLabel(ctx context.Context, executionID, label string) (State, bool, error)
	List(ctx context.Context, executionID string) ([]string, error)
	Delete(ctx context.Context, executionID string, label string) error
}
