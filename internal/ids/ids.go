// Package ids generates the identifiers graphkit attaches to executions
// and checkpoints.
package ids

import "github.com/google/uuid"

// NewExecutionID returns a fresh random execution id, prefixed so
// logs and checkpoint directory names are recognizable at a glance.
func NewExecutionID() string {
	return "exec-" + uuid.NewString()
}

// NewCheckpointLabel returns a fresh random label for an unnamed
// checkpoint (callers that don't supply their own label, e.g.
// auto-checkpoint saves that want uniqueness beyond the node id).
func NewCheckpointLabel() string {
	return "ckpt-" + uuid.NewString()
}
