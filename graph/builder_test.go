package graph

import "testing"

func noopExec(ctx *ExecutionContext) (NodeResult, error) {
	return NodeResult{}, nil
}

func TestBuilderLinearChain(t *testing.T) {
	g, err := NewBuilder().
		Start(&NodeDefinition{ID: "a", Kind: NodeKindTool, Execute: noopExec}).
		Then(&NodeDefinition{ID: "b", Kind: NodeKindTool, Execute: noopExec}).
		Compile(nil)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if g.StartNode != "a" {
		t.Fatalf("start = %q, want a", g.StartNode)
	}
	if !g.Terminal["b"] {
		t.Fatal("b should be inferred terminal")
	}
	if g.Terminal["a"] {
		t.Fatal("a has an outgoing edge and should not be terminal")
	}
}

func TestBuilderIfElseBranchEdges(t *testing.T) {
	cond := func(s State) bool { return s["ok"] == true }
	g, err := NewBuilder().
		Start(&NodeDefinition{ID: "start", Kind: NodeKindTool, Execute: noopExec}).
		If(cond).
		Then(&NodeDefinition{ID: "trueBranch", Kind: NodeKindTool, Execute: noopExec}).
		Else().
		Then(&NodeDefinition{ID: "falseBranch", Kind: NodeKindTool, Execute: noopExec}).
		EndIf().
		Then(&NodeDefinition{ID: "after", Kind: NodeKindTool, Execute: noopExec}).
		Compile(nil)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	var trueEdge, falseEdge *Edge
	for i := range g.Edges {
		e := &g.Edges[i]
		if e.To == "trueBranch" {
			trueEdge = e
		}
		if e.To == "falseBranch" {
			falseEdge = e
		}
	}
	if trueEdge == nil || falseEdge == nil {
		t.Fatalf("expected edges into both branches, got %+v", g.Edges)
	}
	if trueEdge.When == nil || falseEdge.When == nil {
		t.Fatal("branch edges must carry a predicate")
	}
	if !trueEdge.When(State{"ok": true}) {
		t.Fatal("true-branch predicate should select when cond is true")
	}
	if !falseEdge.When(State{"ok": false}) {
		t.Fatal("false-branch predicate should select when cond is false")
	}
	if falseEdge.When(State{"ok": true}) {
		t.Fatal("false-branch predicate should not select when cond is true")
	}
}

func TestBuilderParallelUnsupportedStrategy(t *testing.T) {
	_, err := NewBuilder().
		Start(&NodeDefinition{ID: "start", Kind: NodeKindTool, Execute: noopExec}).
		Parallel(ParallelSpec{
			Branches: []*NodeDefinition{
				{ID: "w1", Kind: NodeKindTool, Execute: noopExec},
			},
			Strategy: "race",
		}).
		Compile(nil)
	if err == nil {
		t.Fatal("expected error for unsupported strategy")
	}
}

func TestBuilderParallelFanOut(t *testing.T) {
	g, err := NewBuilder().
		Start(&NodeDefinition{ID: "start", Kind: NodeKindTool, Execute: noopExec}).
		Parallel(ParallelSpec{
			Branches: []*NodeDefinition{
				{ID: "w1", Kind: NodeKindTool, Execute: noopExec},
				{ID: "w2", Kind: NodeKindTool, Execute: noopExec},
			},
			OutputMapper: func(results map[string]State) State { return State{} },
		}).
		Compile(nil)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	count := 0
	for _, e := range g.Edges {
		if e.To == "w1" || e.To == "w2" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected 2 edges into branches, got %d", count)
	}
}

func TestBuilderUnclosedIfFailsCompile(t *testing.T) {
	_, err := NewBuilder().
		Start(&NodeDefinition{ID: "start", Kind: NodeKindTool, Execute: noopExec}).
		If(func(s State) bool { return true }).
		Then(&NodeDefinition{ID: "branch", Kind: NodeKindTool, Execute: noopExec}).
		Compile(nil)
	if err == nil {
		t.Fatal("expected error for unclosed if")
	}
}

func TestBuilderElseWithoutIfFails(t *testing.T) {
	b := NewBuilder().
		Start(&NodeDefinition{ID: "start", Kind: NodeKindTool, Execute: noopExec}).
		Else()
	if _, err := b.Compile(nil); err == nil {
		t.Fatal("expected error for else without if")
	}
}

func TestBuilderDuplicateNodeFails(t *testing.T) {
	_, err := NewBuilder().
		Start(&NodeDefinition{ID: "dup", Kind: NodeKindTool, Execute: noopExec}).
		Then(&NodeDefinition{ID: "dup", Kind: NodeKindTool, Execute: noopExec}).
		Compile(nil)
	if err == nil {
		t.Fatal("expected error for duplicate node id")
	}
}

func TestBuilderCompileAppliesDefaults(t *testing.T) {
	g, err := NewBuilder().
		Start(&NodeDefinition{ID: "a", Kind: NodeKindTool, Execute: noopExec}).
		Compile(nil)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if g.Config.MaxSteps != 1000 {
		t.Fatalf("MaxSteps = %d, want default 1000", g.Config.MaxSteps)
	}
	if g.Config.MaxConcurrent != 8 {
		t.Fatalf("MaxConcurrent = %d, want default 8", g.Config.MaxConcurrent)
	}
}

func TestBuilderCatchRequiresExistingHandler(t *testing.T) {
	_, err := NewBuilder().
		Start(&NodeDefinition{ID: "a", Kind: NodeKindTool, Execute: noopExec}).
		Catch("missing").
		Compile(nil)
	if err == nil {
		t.Fatal("expected error when error handler node does not exist")
	}
}
