package graph

import "time"

// Status is the execution status machine (§4.3): pending → running →
// {completed | failed | cancelled | paused}. paused is the only
// non-terminal member of that output set; it is re-entered by resuming
// from a checkpoint.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusPaused    Status = "paused"
)

// StepResult is the per-node record produced after each node execution
// (§4.3 step 10), consumed by the StreamRouter and collected into the
// final ExecutionResult.
type StepResult struct {
	NodeID       string
	State        State
	Result       NodeResult
	Duration     time.Duration
	RetryCount   int
	ModelUsed    string
	CustomEvents []CustomEvent

	// Snapshot is populated only on the final synthetic step Stream
	// yields at termination (§4.3 "Streaming API"); NodeID is empty on
	// that step.
	Snapshot ExecutionSnapshot
}

// ExecutionSnapshot is the running execution record the executor
// maintains and eventually returns (§3 ExecutionSnapshot).
type ExecutionSnapshot struct {
	ExecutionID string
	State       State
	Status      Status
	CurrentNode string
	Visited     []string
	Errors      []ExecutionError
	Signals     []Signal

	StartedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time

	StepCount int
}

// ExecutionResult is the caller-facing final value of a graph execution:
// status, the last merged state, and the full snapshot (§7 "User-visible
// failure").
type ExecutionResult struct {
	Status Status
	State  State
	Snapshot ExecutionSnapshot
}

// SubagentSpawnOptions is the sub-agent bridge's input (§6).
type SubagentSpawnOptions struct {
	AgentID      string
	AgentName    string
	Task         string
	SystemPrompt string
	Model        string
	Tools        []string
	Timeout      time.Duration
}

// SubagentResult is the sub-agent bridge's output (§6).
type SubagentResult struct {
	AgentID    string
	Success    bool
	Output     string
	Error      string
	ToolUses   int
	DurationMS int64
}
