package graph

import (
	"context"
	"errors"
	"testing"
)

func branchNode(id string, delta State) *NodeDefinition {
	return &NodeDefinition{
		ID:   id,
		Kind: NodeKindTool,
		Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{Delta: delta}, nil
		},
	}
}

func TestParallelFanOutJoinsViaOutputMapper(t *testing.T) {
	g := mustCompile(t, NewBuilder().
		Start(&NodeDefinition{ID: "start", Kind: NodeKindTool, Execute: noopExec}).
		Parallel(ParallelSpec{
			Branches: []*NodeDefinition{
				branchNode("w1", State{"resultA": 1.0}),
				branchNode("w2", State{"resultB": 2.0}),
			},
			OutputMapper: func(results map[string]State) State {
				return State{
					"resultA": results["w1"]["resultA"],
					"resultB": results["w2"]["resultB"],
				}
			},
		}), nil)

	res, err := NewExecutor(g).Run(context.Background(), "exec-1", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", res.Status)
	}
	if res.State["resultA"] != 1.0 || res.State["resultB"] != 2.0 {
		t.Fatalf("expected both branch outputs merged, got %v / %v", res.State["resultA"], res.State["resultB"])
	}
}

func TestParallelFailFastUnderAllStrategy(t *testing.T) {
	failing := &NodeDefinition{
		ID:   "failing",
		Kind: NodeKindTool,
		Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{}, errors.New("branch failure")
		},
	}
	g := mustCompile(t, NewBuilder().
		Start(&NodeDefinition{ID: "start", Kind: NodeKindTool, Execute: noopExec}).
		Parallel(ParallelSpec{
			Branches: []*NodeDefinition{
				branchNode("w1", State{"ok": true}),
				failing,
			},
			Strategy:     "all",
			OutputMapper: func(results map[string]State) State { return State{} },
		}), nil)

	res, err := NewExecutor(g).Run(context.Background(), "exec-1", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("status = %v, want failed when one branch errors under \"all\" strategy", res.Status)
	}
}
