package graph

import "context"

// NodeKind tags what a node represents so the builder can treat it
// specially when wiring synthetic structure (decision branches, parallel
// joins, loop checks). The executor itself never switches on Kind at
// traversal time — every node is driven through the same Execute
// capability regardless of what it's tagged as.
type NodeKind string

const (
	NodeKindAgent    NodeKind = "agent"
	NodeKindTool     NodeKind = "tool"
	NodeKindDecision NodeKind = "decision"
	NodeKindWait     NodeKind = "wait"
	NodeKindAskUser  NodeKind = "ask_user"
	NodeKindSubgraph NodeKind = "subgraph"
	NodeKindParallel NodeKind = "parallel"
)

// SignalType names an out-of-band control marker a node can emit
// alongside its state delta.
type SignalType string

const (
	SignalHumanInputRequired  SignalType = "human_input_required"
	SignalCheckpoint          SignalType = "checkpoint"
	SignalContextWindowWarn   SignalType = "context_window_warning"
	SignalDebugReportGenerate SignalType = "debug_report_generated"
)

// Signal is an out-of-band control marker returned alongside a
// NodeResult's state delta.
type Signal struct {
	Type    SignalType
	Payload any
}

// CustomEvent is an application-defined event a node emits during
// execution via ExecutionContext.Emit, independent of its final
// NodeResult. These are what the StreamRouter's "events" mode projects.
type CustomEvent struct {
	Type      string
	Data      any
	Timestamp string
}

// ExecutionContext is passed to a node's Execute function. It exposes
// the current state, the model resolved for this node (§4.3 step 3),
// cancellation, the errors accumulated so far this execution, a way to
// emit custom events, a lookup of prior node outputs, the compiled
// graph's config, and the runtime dependency bag injected by the
// Runtime facade.
type ExecutionContext struct {
	Context context.Context

	State       State
	Model       string
	Errors      []ExecutionError
	Config      *Config
	Runtime     *RuntimeDeps
	NodeOutputs func(nodeID string) (any, bool)

	// ContextUsage reports the resolved model's running token
	// consumption as a fraction of its context window (0-1), sourced
	// from the execution's CostTracker when one is configured. Zero
	// when no tracker is attached.
	ContextUsage float64

	emit func(CustomEvent)
}

// Emit records a custom event against the currently executing node. It
// is a no-op if no emitter was configured for this execution.
func (c *ExecutionContext) Emit(eventType string, data any) {
	if c.emit == nil {
		return
	}
	c.emit(CustomEvent{Type: eventType, Data: data, Timestamp: nowISO()})
}

// NodeResult is the output of a node execution: an optional partial
// state update, an optional routing override, and any signals raised
// during the node's work.
type NodeResult struct {
	// Delta is the partial state update to be merged via MergeState. A
	// nil or empty Delta is valid and still refreshes lastUpdated.
	Delta State

	// Goto overrides normal edge evaluation. A single id routes
	// directly to that node; a list of ids enters parallel mode,
	// fanning out to each listed branch concurrently.
	Goto []string

	// Signals are out-of-band markers processed after the merge (§4.3
	// step 8): human_input_required pauses the execution,
	// checkpoint requests an out-of-band save.
	Signals []Signal
}

// GotoOne returns a NodeResult's single routing target, and whether one
// was set at all (as opposed to a parallel fan-out list or none).
func (r NodeResult) GotoOne() (string, bool) {
	if len(r.Goto) == 1 {
		return r.Goto[0], true
	}
	return "", false
}

// ExecuteFunc is the function a node runs when visited. It receives an
// ExecutionContext and returns a NodeResult, or an error if the node's
// work failed — errors flow through the retry/error-hook pipeline
// described in §4.3, never returned directly to the caller of Run.
type ExecuteFunc func(ctx *ExecutionContext) (NodeResult, error)

// ErrorHook is invoked when a node's retries are exhausted. It decides
// how the executor should proceed: retry once more, skip the node,
// abort the execution, or route to a designated recovery node.
type ErrorHook func(ctx *ExecutionContext, err error) ErrorAction

// ErrorActionKind enumerates the dispositions an ErrorHook may return.
type ErrorActionKind string

const (
	ErrorActionRetry ErrorActionKind = "retry"
	ErrorActionSkip  ErrorActionKind = "skip"
	ErrorActionAbort ErrorActionKind = "abort"
	ErrorActionGoto  ErrorActionKind = "goto"
)

// ErrorAction is the disposition an ErrorHook returns for a node whose
// retries are exhausted.
type ErrorAction struct {
	Kind ErrorActionKind

	// Delay is consulted when Kind is ErrorActionRetry: the executor
	// sleeps this long before re-invoking the same node, counting as
	// one further attempt.
	Delay DurationMS

	// FallbackState is merged into the current state when Kind is
	// ErrorActionSkip, before the executor proceeds along the node's
	// default outgoing edges.
	FallbackState State

	// Error overrides the error surfaced in the final snapshot when
	// Kind is ErrorActionAbort. If nil, the original error is used.
	Error error

	// NodeID names the recovery target when Kind is ErrorActionGoto.
	// The target must exist and carry IsRecoveryNode = true.
	NodeID string
}

// DurationMS is a millisecond duration, matching the wire-level
// granularity of retry policy and backoff fields throughout this
// package.
type DurationMS = int64

// NodeDefinition describes one unit of work in the graph: its identity,
// kind, execution function, and the policies that govern how the
// executor drives it.
type NodeDefinition struct {
	ID          string
	Kind        NodeKind
	Name        string
	Description string

	Execute ExecuteFunc

	// InputSchema / OutputSchema are validated by the StateValidator
	// before and after Execute runs, when non-nil.
	InputSchema  *ValidationSchema
	OutputSchema *ValidationSchema

	Retry *RetryPolicy

	// OnError is consulted once a node's retries are exhausted.
	OnError ErrorHook

	// IsRecoveryNode marks this node as a valid target for an
	// ErrorActionGoto from elsewhere in the graph.
	IsRecoveryNode bool

	// Model is a hint overriding the model resolution chain in §4.3
	// step 3. An empty value or the literal "inherit" falls back to the
	// graph's DefaultModel; no parent context's model is consulted.
	Model string

	// ParallelStrategy and OutputMapper are populated on synthetic
	// parallel nodes emitted by GraphBuilder.Parallel; the executor
	// consults them whenever this node's result names more than one
	// Goto target, whatever the node's Kind.
	ParallelStrategy string
	OutputMapper     func(branchStates map[string]State) State
}
