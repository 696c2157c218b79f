package graph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/graphkit/graph/checkpoint"
	"github.com/dshills/graphkit/graph/stream"
)

// S1 — Linear chain: a sets counter=1 and outputs.a="x"; b sets
// counter=current+1 and outputs.b="y". Final: counter=2,
// outputs={a:"x", b:"y"}, status=completed.
func TestAcceptanceS1LinearChain(t *testing.T) {
	schema := Schema{"counter": Annotation{Reducer: SumReducer}}

	g := mustCompile(t, NewBuilder().
		WithSchema(schema).
		Start(&NodeDefinition{ID: "a", Kind: NodeKindTool, Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{Delta: State{"counter": 1.0, KeyOutputs: State{"a": "x"}}}, nil
		}}).
		Then(&NodeDefinition{ID: "b", Kind: NodeKindTool, Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{Delta: State{"counter": 1.0, KeyOutputs: State{"b": "y"}}}, nil
		}}), nil)

	res, err := NewExecutor(g).Run(context.Background(), "exec-s1", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", res.Status)
	}
	if res.State["counter"] != 2.0 {
		t.Fatalf("counter = %v, want 2.0", res.State["counter"])
	}
	outputs := res.State[KeyOutputs].(State)
	if outputs["a"] != "x" || outputs["b"] != "y" {
		t.Fatalf("outputs = %v, want {a:x, b:y}", outputs)
	}
}

// S2 — If/else: start sets flag=true; if-branch sets
// messages=["if-branch"]; end appends "end". Final: messages=["if-branch","end"].
func TestAcceptanceS2IfElse(t *testing.T) {
	schema := Schema{"messages": Annotation{Reducer: ConcatReducer}}
	cond := func(s State) bool { return s["flag"] == true }

	g := mustCompile(t, NewBuilder().
		WithSchema(schema).
		Start(&NodeDefinition{ID: "start", Kind: NodeKindTool, Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{Delta: State{"flag": true}}, nil
		}}).
		If(cond).
		Then(&NodeDefinition{ID: "ifBranch", Kind: NodeKindTool, Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{Delta: State{"messages": []any{"if-branch"}}}, nil
		}}).
		Else().
		Then(&NodeDefinition{ID: "elseBranch", Kind: NodeKindTool, Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{Delta: State{"messages": []any{"else-branch"}}}, nil
		}}).
		EndIf().
		Then(&NodeDefinition{ID: "end", Kind: NodeKindTool, Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{Delta: State{"messages": []any{"end"}}}, nil
		}}), nil)

	res, err := NewExecutor(g).Run(context.Background(), "exec-s2", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	messages, ok := res.State["messages"].([]any)
	if !ok || len(messages) != 2 || messages[0] != "if-branch" || messages[1] != "end" {
		t.Fatalf("messages = %v, want [if-branch end]", res.State["messages"])
	}
}

// S3 — Retry exhaustion: node always throws with
// retry={maxAttempts:2, backoffMs:10, backoffMultiplier:1}. Expected:
// exactly 2 invocations, status=failed.
func TestAcceptanceS3RetryExhaustion(t *testing.T) {
	invocations := 0
	g := mustCompile(t, NewBuilder().
		Start(&NodeDefinition{
			ID:   "alwaysFails",
			Kind: NodeKindTool,
			Retry: &RetryPolicy{
				MaxAttempts:       2,
				BackoffMS:         10,
				BackoffMultiplier: 1,
			},
			Execute: func(ctx *ExecutionContext) (NodeResult, error) {
				invocations++
				return NodeResult{}, errors.New("always fails")
			},
		}), nil)

	res, err := NewExecutor(g).Run(context.Background(), "exec-s3", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if invocations != 2 {
		t.Fatalf("invocations = %d, want 2", invocations)
	}
	if res.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", res.Status)
	}
	if len(res.Snapshot.Errors) < 1 {
		t.Fatal("expected at least one recorded error")
	}
}

// S4 — onError goto to a non-recovery node: hook returns
// {action:"goto", nodeId:"x"} where x exists but is not a recovery node.
// Expected: status=failed, error mentions the isRecoveryNode requirement.
func TestAcceptanceS4OnErrorGotoNonRecoveryNode(t *testing.T) {
	failing := &NodeDefinition{
		ID:   "failing",
		Kind: NodeKindTool,
		Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{}, errors.New("boom")
		},
		OnError: func(ctx *ExecutionContext, err error) ErrorAction {
			return ErrorAction{Kind: ErrorActionGoto, NodeID: "x"}
		},
	}
	notRecovery := &NodeDefinition{
		ID:   "x",
		Kind: NodeKindTool,
		Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{}, nil
		},
	}

	g := mustCompile(t, NewBuilder().
		Start(failing).
		Then(notRecovery), nil)

	res, err := NewExecutor(g).Run(context.Background(), "exec-s4", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", res.Status)
	}
	found := false
	for _, e := range res.Snapshot.Errors {
		if e.Err != nil && strings.Contains(e.Err.Error(), `onError goto target "x" must set isRecoveryNode: true`) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an error naming the isRecoveryNode requirement, got %+v", res.Snapshot.Errors)
	}
}

// S5 — Parallel fan-out: three independent branches spawn sub-agents,
// all succeed. Expected: exactly one call to spawnSubagentParallel
// carrying three options in input order; iteration counter increments
// by 1.
func TestAcceptanceS5ParallelFanOutAllSucceed(t *testing.T) {
	var calls int
	var seenOrder []string

	g := mustCompile(t, NewBuilder().
		Start(&NodeDefinition{
			ID:   "fanout",
			Kind: NodeKindParallel,
			Execute: func(ctx *ExecutionContext) (NodeResult, error) {
				opts := []SubagentSpawnOptions{
					{AgentID: "task1", Task: "do 1"},
					{AgentID: "task2", Task: "do 2"},
					{AgentID: "task3", Task: "do 3"},
				}
				results, err := ctx.Runtime.SpawnSubagentParallel(ctx, opts)
				if err != nil {
					return NodeResult{}, err
				}
				completed := make([]any, 0, len(results))
				for _, r := range results {
					completed = append(completed, r.AgentID)
				}
				iter, _ := toFloat(ctx.State["iteration"])
				return NodeResult{Delta: State{
					"completedFeatures": completed,
					"iteration":         iter + 1,
				}}, nil
			},
		}), nil)
	g.Config.Runtime = &RuntimeDeps{
		SpawnSubagentParallel: func(_ *ExecutionContext, opts []SubagentSpawnOptions) ([]SubagentResult, error) {
			calls++
			for _, o := range opts {
				seenOrder = append(seenOrder, o.AgentID)
			}
			results := make([]SubagentResult, len(opts))
			for i, o := range opts {
				results[i] = SubagentResult{AgentID: o.AgentID, Success: true}
			}
			return results, nil
		},
	}

	res, err := NewExecutor(g).Run(context.Background(), "exec-s5", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", res.Status)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one spawnSubagentParallel call, got %d", calls)
	}
	want := []string{"task1", "task2", "task3"}
	if len(seenOrder) != len(want) {
		t.Fatalf("seenOrder = %v, want %v", seenOrder, want)
	}
	for i, id := range want {
		if seenOrder[i] != id {
			t.Fatalf("seenOrder[%d] = %q, want %q (input order must be preserved)", i, seenOrder[i], id)
		}
	}
	if res.State["iteration"] != 1.0 {
		t.Fatalf("iteration = %v, want 1.0 (one batch)", res.State["iteration"])
	}
}

// S6 — Mixed success/failure parallel: three branches, middle one
// fails. Expected: first and third tasks completed, middle errored;
// execution status completed; order mirrors input order.
func TestAcceptanceS6MixedSuccessFailureParallel(t *testing.T) {
	g := mustCompile(t, NewBuilder().
		Start(&NodeDefinition{
			ID:   "fanout",
			Kind: NodeKindParallel,
			Execute: func(ctx *ExecutionContext) (NodeResult, error) {
				opts := []SubagentSpawnOptions{
					{AgentID: "task1", Task: "do 1"},
					{AgentID: "task2", Task: "do 2"},
					{AgentID: "task3", Task: "do 3"},
				}
				results, err := ctx.Runtime.SpawnSubagentParallel(ctx, opts)
				if err != nil {
					return NodeResult{}, err
				}
				statuses := make([]any, 0, len(results))
				for _, r := range results {
					if r.Success {
						statuses = append(statuses, r.AgentID+":completed")
					} else {
						statuses = append(statuses, r.AgentID+":errored")
					}
				}
				return NodeResult{Delta: State{"taskStatuses": statuses}}, nil
			},
		}), nil)
	g.Config.Runtime = &RuntimeDeps{
		SpawnSubagentParallel: func(_ *ExecutionContext, opts []SubagentSpawnOptions) ([]SubagentResult, error) {
			results := make([]SubagentResult, len(opts))
			for i, o := range opts {
				if o.AgentID == "task2" {
					results[i] = SubagentResult{AgentID: o.AgentID, Success: false, Error: "branch failure"}
					continue
				}
				results[i] = SubagentResult{AgentID: o.AgentID, Success: true}
			}
			return results, nil
		},
	}

	res, err := NewExecutor(g).Run(context.Background(), "exec-s6", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed (a failed sub-agent is reported, not a fatal error)", res.Status)
	}
	statuses, ok := res.State["taskStatuses"].([]any)
	if !ok || len(statuses) != 3 {
		t.Fatalf("taskStatuses = %v, want 3 entries", res.State["taskStatuses"])
	}
	want := []string{"task1:completed", "task2:errored", "task3:completed"}
	for i, w := range want {
		if statuses[i] != w {
			t.Fatalf("taskStatuses[%d] = %v, want %q", i, statuses[i], w)
		}
	}
}

// S7 — Stream projection order: one node that emits one custom event
// and retries once; requesting modes [values, updates, events, debug]
// in that order. Expected: values, updates, events, debug per step,
// with debug.retryCount=1 and debug.modelUsed equal to defaultModel.
func TestAcceptanceS7StreamProjectionOrder(t *testing.T) {
	attempts := 0
	g := mustCompile(t, NewBuilder().
		Start(&NodeDefinition{
			ID: "flaky",
			Retry: &RetryPolicy{
				MaxAttempts: 2,
			},
			Execute: func(ctx *ExecutionContext) (NodeResult, error) {
				attempts++
				ctx.Emit("progress", attempts)
				if attempts < 2 {
					return NodeResult{}, errors.New("transient")
				}
				return NodeResult{Delta: State{"done": true}}, nil
			},
		}), &Config{DefaultModel: "gpt-4o"})

	ch, err := NewExecutor(g).Stream(context.Background(), "exec-s7", nil, nil)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	router := stream.NewRouter(stream.ModeValues, stream.ModeUpdates, stream.ModeEvents, stream.ModeDebug)

	var modeOrder []stream.Mode
	var debugTrace *stream.DebugTrace
	for step := range ch {
		for _, p := range router.Project(step) {
			modeOrder = append(modeOrder, p.Mode)
			if p.Debug != nil {
				trace := p.Debug.Trace
				debugTrace = &trace
			}
		}
	}

	wantModes := []stream.Mode{stream.ModeValues, stream.ModeUpdates, stream.ModeEvents, stream.ModeDebug}
	if len(modeOrder) != len(wantModes) {
		t.Fatalf("modeOrder = %v, want %v", modeOrder, wantModes)
	}
	for i, m := range wantModes {
		if modeOrder[i] != m {
			t.Fatalf("modeOrder[%d] = %v, want %v", i, modeOrder[i], m)
		}
	}
	if debugTrace == nil {
		t.Fatal("expected a debug projection")
	}
	if debugTrace.RetryCount != 1 {
		t.Fatalf("debug.retryCount = %d, want 1", debugTrace.RetryCount)
	}
	if debugTrace.ModelUsed != "gpt-4o" {
		t.Fatalf("debug.modelUsed = %q, want gpt-4o", debugTrace.ModelUsed)
	}
}

// S8 — Checkpoint round-trip (human-readable). Save {state,
// label:"step_1"}, then load. Expected structural equality, header keys
// executionId, label, timestamp, nodeCount present.
func TestAcceptanceS8CheckpointRoundTripHumanReadable(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	cp := checkpoint.NewHumanReadableCheckpointer(root)

	state := State{"counter": 2.0, KeyOutputs: State{"a": "x", "b": "y"}}
	if err := cp.Save(ctx, "exec-s8", state, "step_1"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, ok, err := cp.LoadByLabel(ctx, "exec-s8", "step_1")
	if err != nil || !ok {
		t.Fatalf("load failed: ok=%v err=%v", ok, err)
	}
	if got["counter"] != 2.0 {
		t.Fatalf("counter = %v, want 2.0", got["counter"])
	}
	outputs, ok := got[KeyOutputs].(State)
	if !ok {
		if m, ok2 := got[KeyOutputs].(map[string]any); ok2 {
			outputs = State(m)
			ok = true
		}
	}
	if !ok || outputs["a"] != "x" || outputs["b"] != "y" {
		t.Fatalf("outputs = %v, want {a:x, b:y}", got[KeyOutputs])
	}

	labels, err := cp.List(ctx, "exec-s8")
	if err != nil || len(labels) != 1 || labels[0] != "step_1" {
		t.Fatalf("list = %v, err = %v, want [step_1]", labels, err)
	}

	raw, err := os.ReadFile(filepath.Join(root, "exec-s8", "step_1.md"))
	if err != nil {
		t.Fatalf("reading checkpoint file failed: %v", err)
	}
	header, _, err := checkpoint.ParseHeader(raw)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	for _, key := range []string{"executionId", "label", "timestamp", "nodeCount"} {
		if _, ok := header[key]; !ok {
			t.Fatalf("header missing key %q: %v", key, header)
		}
	}
}
