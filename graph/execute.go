package graph

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/dshills/graphkit/internal/ids"
)

// Executor drives a single execution of a CompiledGraph: one node is
// "current" at a time except inside parallel fan-out, where branches run
// concurrently (§5 "cooperative single-logical-thread driver per graph
// execution").
type Executor struct {
	graph *CompiledGraph
}

// NewExecutor builds an Executor for graph.
func NewExecutor(graph *CompiledGraph) *Executor {
	return &Executor{graph: graph}
}

// Run drives the graph to completion (or a terminal non-completed
// status) and returns the final ExecutionResult.
func (ex *Executor) Run(ctx context.Context, executionID string, initial State) (ExecutionResult, error) {
	ch, err := ex.Stream(ctx, executionID, initial, nil)
	if err != nil {
		return ExecutionResult{}, err
	}
	var last StepResult
	for step := range ch {
		last = step
	}
	return ExecutionResult{
		Status:   last.Snapshot.Status,
		State:    last.State,
		Snapshot: last.Snapshot,
	}, nil
}

// Stream drives the graph and yields one StepResult per executed node
// plus a final synthetic step carrying the terminal status (§4.3
// "Streaming API"). The channel is pull-driven: closing/draining it ends
// execution; cancelling ctx closes it early with status cancelled.
func (ex *Executor) Stream(ctx context.Context, executionID string, initial State, onEvent func(CustomEvent)) (<-chan StepResult, error) {
	g := ex.graph
	if g.StartNode == "" {
		return nil, ErrNoStartNode
	}
	if executionID == "" {
		executionID = ids.NewExecutionID()
	}

	out := make(chan StepResult)

	go func() {
		defer close(out)
		ex.run(ctx, executionID, initial, onEvent, out)
	}()

	return out, nil
}

func (ex *Executor) run(ctx context.Context, executionID string, initial State, onEvent func(CustomEvent), out chan<- StepResult) {
	g := ex.graph
	cfg := g.Config

	state := InitState(executionID, g.Schema, initial)
	snap := ExecutionSnapshot{
		ExecutionID: executionID,
		State:       state,
		Status:      StatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	currentNode := g.StartNode
	stepCount := 0
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 1000
	}

	for {
		select {
		case <-ctx.Done():
			snap.Status = StatusCancelled
			ex.emitTerminal(out, snap)
			return
		default:
		}

		stepCount++
		if stepCount > maxSteps {
			snap.Errors = append(snap.Errors, *newExecutionError(currentNode, ErrorKindMaxSteps, ErrMaxStepsExceeded, 0))
			snap.Status = StatusFailed
			ex.emitTerminal(out, snap)
			return
		}

		node, ok := g.Node(currentNode)
		if !ok {
			snap.Errors = append(snap.Errors, *newExecutionError(currentNode, ErrorKindNodeExecution, fmt.Errorf("node %q not found", currentNode), 0))
			snap.Status = StatusFailed
			ex.emitTerminal(out, snap)
			return
		}

		snap.CurrentNode = currentNode
		snap.Visited = append(snap.Visited, currentNode)

		step, action, err := ex.executeNode(ctx, node, &state, &snap, onEvent)
		if err != nil {
			snap.Status = StatusFailed
			snap.StepCount = stepCount
			ex.emitTerminal(out, snap)
			return
		}

		state = step.State
		snap.State = state
		snap.UpdatedAt = time.Now().UTC()
		snap.StepCount = stepCount

		out <- step

		if action.pause {
			snap.Status = StatusPaused
			ex.emitTerminal(out, snap)
			return
		}

		if action.checkpoint && cfg.Checkpointer != nil {
			_ = cfg.Checkpointer.Save(ctx, executionID, state, fmt.Sprintf("%s-%d", currentNode, stepCount))
		}
		if cfg.AutoCheckpoint && cfg.Checkpointer != nil {
			_ = cfg.Checkpointer.Save(ctx, executionID, state, fmt.Sprintf("%s-%d", currentNode, stepCount))
		}

		switch {
		case len(action.gotoIDs) == 1:
			currentNode = action.gotoIDs[0]
		case len(action.gotoIDs) > 1:
			branchState, err := ex.runParallel(ctx, node, action.gotoIDs, state, &snap, onEvent)
			if err != nil {
				snap.Errors = append(snap.Errors, *newExecutionError(currentNode, ErrorKindNodeExecution, err, 0))
				snap.Status = StatusFailed
				ex.emitTerminal(out, snap)
				return
			}
			state = branchState
			snap.State = state
			next, terminal := ex.nextAfter(currentNode, state)
			if terminal {
				snap.Status = StatusCompleted
				ex.emitTerminal(out, snap)
				return
			}
			currentNode = next
		default:
			next, terminal := ex.nextAfter(currentNode, state)
			if terminal {
				snap.Status = StatusCompleted
				ex.emitTerminal(out, snap)
				return
			}
			currentNode = next
		}
	}
}

// routeAction is the internal disposition decided by executeNode: either
// a direct goto (single id or parallel fan-out list), a pause for human
// input, or a checkpoint request — folded out of the node's raw Signals
// so the step loop doesn't re-walk them.
type routeAction struct {
	gotoIDs    []string
	pause      bool
	checkpoint bool
}

func (ex *Executor) nextAfter(nodeID string, state State) (string, bool) {
	for _, e := range ex.graph.outgoing(nodeID) {
		if e.When == nil || e.When(state) {
			return e.To, false
		}
	}
	return "", true
}

func (ex *Executor) emitTerminal(out chan<- StepResult, snap ExecutionSnapshot) {
	snap.CompletedAt = time.Now().UTC()
	out <- StepResult{
		NodeID:   "",
		State:    snap.State,
		Snapshot: snap,
	}
}

// executeNode runs §4.3 steps 2-9 for one node: input validation, model
// resolution, execute-with-retry, error hook, output validation, merge,
// signal handling.
func (ex *Executor) executeNode(ctx context.Context, node *NodeDefinition, state *State, snap *ExecutionSnapshot, onEvent func(CustomEvent)) (StepResult, routeAction, error) {
	cfg := ex.graph.Config
	started := time.Now()

	validator := StateValidator{}
	if node.InputSchema != nil {
		if _, err := validator.ValidateNodeInput(node.ID, *state, node.InputSchema); err != nil {
			return ex.handleNodeFailure(ctx, node, state, snap, err, ErrorKindSchemaValidation, 0)
		}
	}

	model := resolveModel(node, cfg)

	var contextUsage float64
	if cfg.CostTracker != nil {
		contextUsage = cfg.CostTracker.GetContextUsage(model)
	}

	var events []CustomEvent
	execCtx := &ExecutionContext{
		Context:      ctx,
		State:        *state,
		Model:        model,
		Errors:       snap.Errors,
		Config:       cfg,
		Runtime:      cfg.Runtime,
		ContextUsage: contextUsage,
		NodeOutputs: func(nodeID string) (any, bool) {
			outputs, _ := toMap((*state)[KeyOutputs])
			v, ok := outputs[nodeID]
			return v, ok
		},
		emit: func(e CustomEvent) {
			events = append(events, e)
			if onEvent != nil {
				onEvent(e)
			}
		},
	}

	contextWindowThreshold := cfg.ContextWindowPercent
	if contextWindowThreshold <= 0 {
		contextWindowThreshold = 0.9
	}
	if contextUsage >= contextWindowThreshold {
		snap.Signals = append(snap.Signals, Signal{
			Type:    SignalContextWindowWarn,
			Payload: map[string]any{"nodeId": node.ID, "model": model, "usage": contextUsage},
		})
	}

	// Only the custom events of the attempt whose result is used land in
	// the StepResult; a failed attempt's events are dropped on retry.
	attemptNode := *node
	attemptNode.Execute = func(c *ExecutionContext) (NodeResult, error) {
		events = nil
		return node.Execute(c)
	}
	result, retries, err := ex.executeWithRetry(execCtx, &attemptNode)
	if cfg.Metrics != nil && retries > 0 {
		for i := 0; i < retries; i++ {
			cfg.Metrics.IncrementRetries(snap.ExecutionID, node.ID)
		}
	}
	if err != nil {
		if cfg.Metrics != nil {
			cfg.Metrics.RecordStepLatency(snap.ExecutionID, node.ID, time.Since(started), "failed")
		}
		return ex.handleNodeFailure(ctx, node, state, snap, err, ErrorKindNodeExecution, retries)
	}

	if node.OutputSchema != nil {
		merged := MergeState(*state, result.Delta, ex.graph.Schema)
		if _, verr := validator.ValidateNodeOutput(node.ID, merged, node.OutputSchema); verr != nil {
			return ex.handleNodeFailure(ctx, node, state, snap, verr, ErrorKindSchemaValidation, retries)
		}
	}
	if cfg.OutputSchema != nil {
		merged := MergeState(*state, result.Delta, ex.graph.Schema)
		if _, verr := validator.Validate(merged, cfg.OutputSchema); verr != nil {
			return ex.handleNodeFailure(ctx, node, state, snap, verr, ErrorKindSchemaValidation, retries)
		}
	}

	newState := MergeState(*state, result.Delta, ex.graph.Schema)

	action := routeAction{gotoIDs: result.Goto}
	for _, sig := range result.Signals {
		snap.Signals = append(snap.Signals, sig)
		switch sig.Type {
		case SignalHumanInputRequired:
			action.pause = true
		case SignalCheckpoint:
			action.checkpoint = true
		}
	}

	if cfg.Metrics != nil {
		cfg.Metrics.RecordStepLatency(snap.ExecutionID, node.ID, time.Since(started), "ok")
	}

	step := StepResult{
		NodeID:       node.ID,
		State:        newState,
		Result:       result,
		Duration:     time.Since(started),
		RetryCount:   retries,
		ModelUsed:    model,
		CustomEvents: events,
	}
	return step, action, nil
}

func (ex *Executor) handleNodeFailure(ctx context.Context, node *NodeDefinition, state *State, snap *ExecutionSnapshot, err error, kind ErrorKind, attempt int) (StepResult, routeAction, error) {
	snap.Errors = append(snap.Errors, *newExecutionError(node.ID, kind, err, attempt))

	if node.OnError == nil {
		return StepResult{}, routeAction{}, err
	}

	execCtx := &ExecutionContext{Context: ctx, State: *state, Config: ex.graph.Config, Runtime: ex.graph.Config.Runtime}
	action := node.OnError(execCtx, err)

	switch action.Kind {
	case ErrorActionRetry:
		time.Sleep(time.Duration(action.Delay) * time.Millisecond)
		once := *node
		once.Retry = nil
		return ex.executeNode(ctx, &once, state, snap, nil)
	case ErrorActionSkip:
		newState := MergeState(*state, action.FallbackState, ex.graph.Schema)
		return StepResult{NodeID: node.ID, State: newState}, routeAction{}, nil
	case ErrorActionAbort:
		if action.Error != nil {
			return StepResult{}, routeAction{}, action.Error
		}
		return StepResult{}, routeAction{}, err
	case ErrorActionGoto:
		target, ok := ex.graph.Node(action.NodeID)
		if !ok || !target.IsRecoveryNode {
			recErr := missingRecoveryError(action.NodeID)
			snap.Errors = append(snap.Errors, *newExecutionError(node.ID, ErrorKindNodeExecution, recErr, attempt))
			return StepResult{}, routeAction{}, recErr
		}
		return StepResult{NodeID: node.ID, State: *state}, routeAction{gotoIDs: []string{action.NodeID}}, nil
	default:
		return StepResult{}, routeAction{}, err
	}
}

// executeWithRetry runs node.Execute, retrying per node.Retry until
// maxAttempts is reached or RetryOn returns false (§4.3 step 4).
func (ex *Executor) executeWithRetry(execCtx *ExecutionContext, node *NodeDefinition) (NodeResult, int, error) {
	policy := node.Retry
	maxAttempts := 1
	if policy != nil {
		maxAttempts = policy.MaxAttempts
	}

	jitter := func(max time.Duration) time.Duration {
		return time.Duration(rand.Int63n(int64(max) + 1))
	}

	var lastErr error
	retries := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := node.Execute(execCtx)
		if err == nil {
			return result, attempt - 1, nil
		}
		lastErr = err
		retries = attempt - 1
		if policy == nil || !policy.retryable(err) || attempt == maxAttempts {
			break
		}
		select {
		case <-execCtx.Context.Done():
			return NodeResult{}, attempt - 1, execCtx.Context.Err()
		case <-time.After(policy.backoffDelay(attempt+1, jitter)):
		}
	}
	return NodeResult{}, retries, lastErr
}

// resolveModel picks node.Model (unless empty or "inherit"), else the
// graph's DefaultModel, else "unknown" (§4.3 step 3). No parent-context
// model is consulted: an "inherit" node resolves like a node with no
// Model set.
func resolveModel(node *NodeDefinition, cfg *Config) string {
	if node.Model != "" && node.Model != "inherit" {
		return node.Model
	}
	if cfg != nil && cfg.DefaultModel != "" {
		return cfg.DefaultModel
	}
	return "unknown"
}

var errNoReadyBranch = errors.New("parallel node produced no branches")
