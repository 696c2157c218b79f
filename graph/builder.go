package graph

import "fmt"

// GraphBuilder performs pure, fluent structural construction (§4.2): it
// accumulates nodes and edges and performs no reachability validation
// beyond the invariants checked at Compile. Zero value is not usable;
// construct with NewBuilder.
type GraphBuilder struct {
	nodes     map[string]*NodeDefinition
	edges     []Edge
	order     []string
	startNode string
	last      string
	lastSet   bool

	ifStack []ifFrame

	errorHandlerID string
	metadata       map[string]any
	schema         Schema

	err error
}

type ifFrame struct {
	decisionID string
	cond       Predicate
	inElse     bool
	mergeID    string
	branchTail string // last node id added within the current branch
	branchHead bool   // true once the current branch has had at least one .then
}

var builderSeq int

func nextSynthID(prefix string) string {
	builderSeq++
	return fmt.Sprintf("%s_%d", prefix, builderSeq)
}

// NewBuilder creates an empty GraphBuilder.
func NewBuilder() *GraphBuilder {
	return &GraphBuilder{
		nodes:    make(map[string]*NodeDefinition),
		metadata: make(map[string]any),
	}
}

func (b *GraphBuilder) fail(err error) *GraphBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *GraphBuilder) addNode(n *NodeDefinition) bool {
	if _, exists := b.nodes[n.ID]; exists {
		b.fail(fmt.Errorf("%w: %q", ErrDuplicateNode, n.ID))
		return false
	}
	b.nodes[n.ID] = n
	b.order = append(b.order, n.ID)
	return true
}

func (b *GraphBuilder) addEdge(from, to, label string) {
	b.edges = append(b.edges, Edge{From: from, To: to, Label: label})
}

// Start sets the graph's entry node. It fails if called twice.
func (b *GraphBuilder) Start(n *NodeDefinition) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if b.startNode != "" {
		return b.fail(fmt.Errorf("start already set to %q", b.startNode))
	}
	if !b.addNode(n) {
		return b
	}
	b.startNode = n.ID
	b.last = n.ID
	b.lastSet = true
	return b
}

// Then appends n after the most recently added node with an
// unconditional edge.
func (b *GraphBuilder) Then(n *NodeDefinition) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if !b.addNode(n) {
		return b
	}

	if len(b.ifStack) > 0 && b.last == b.ifStack[len(b.ifStack)-1].decisionID {
		// First node of a branch: the edge out of the decision node
		// itself must carry the branch's condition and label, so the
		// executor's edge evaluation (§4.3 step 11) can pick a side.
		frame := &b.ifStack[len(b.ifStack)-1]
		label := "if-true"
		cond := frame.cond
		if frame.inElse {
			label = "if-false"
			c := frame.cond
			cond = func(s State) bool { return !c(s) }
		}
		b.edges = append(b.edges, Edge{From: b.last, To: n.ID, Label: label, When: cond})
		frame.branchTail = n.ID
		frame.branchHead = true
	} else if b.lastSet {
		b.addEdge(b.last, n.ID, "")
		if len(b.ifStack) > 0 {
			b.ifStack[len(b.ifStack)-1].branchTail = n.ID
		}
	} else {
		b.startNode = n.ID
	}

	b.last = n.ID
	b.lastSet = true
	return b
}

// End records nothing: terminality is always inferred from
// outgoing-edge emptiness at Compile, whether or not End was called, so
// a node that ends up with an outgoing edge is never terminal.
func (b *GraphBuilder) End() *GraphBuilder {
	// No-op marker for symmetry with the spec's fluent surface:
	// terminality is always inferred at compile time from the edge
	// list, so there is nothing to record here beyond leaving the
	// builder's cursor where it is.
	return b
}

// If begins a conditional branch: cond is evaluated against the current
// state; the chained Then calls until the matching Else/EndIf form the
// true branch.
func (b *GraphBuilder) If(cond Predicate) *GraphBuilder {
	if b.err != nil {
		return b
	}
	decision := &NodeDefinition{
		ID:   nextSynthID("decision"),
		Kind: NodeKindDecision,
		Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{}, nil
		},
	}
	if !b.addNode(decision) {
		return b
	}
	if b.lastSet {
		b.addEdge(b.last, decision.ID, "")
	} else {
		b.startNode = decision.ID
	}
	merge := &NodeDefinition{
		ID:   nextSynthID("merge"),
		Kind: NodeKindDecision,
		Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{}, nil
		},
	}
	b.ifStack = append(b.ifStack, ifFrame{decisionID: decision.ID, mergeID: merge.ID, cond: cond})
	b.last = decision.ID
	b.lastSet = true
	return b
}

// Else switches to the false branch of the innermost open If.
func (b *GraphBuilder) Else() *GraphBuilder {
	if b.err != nil {
		return b
	}
	if len(b.ifStack) == 0 {
		return b.fail(fmt.Errorf("%w: else without if", ErrUnbalancedBuilder))
	}
	frame := &b.ifStack[len(b.ifStack)-1]
	if frame.branchHead {
		b.addEdge(frame.branchTail, frame.mergeID, "")
	} else {
		// empty true branch: decision routes straight to merge under
		// the true condition.
		b.edges = append(b.edges, Edge{From: frame.decisionID, To: frame.mergeID, Label: "if-true", When: frame.cond})
	}
	frame.inElse = true
	frame.branchHead = false
	b.last = frame.decisionID
	b.lastSet = true
	return b
}

// EndIf closes the innermost open If, converging both branches on a
// synthetic merge node that execution continues from.
func (b *GraphBuilder) EndIf() *GraphBuilder {
	if b.err != nil {
		return b
	}
	if len(b.ifStack) == 0 {
		return b.fail(fmt.Errorf("%w: endif without if", ErrUnbalancedBuilder))
	}
	frame := b.ifStack[len(b.ifStack)-1]
	b.ifStack = b.ifStack[:len(b.ifStack)-1]

	if frame.branchHead {
		// Convergence edge: plain, unconditional — the branch ran to
		// completion, nothing left to decide before the merge.
		b.addEdge(frame.branchTail, frame.mergeID, "")
	} else {
		label := "if-true"
		cond := frame.cond
		if frame.inElse {
			label = "if-false"
			c := frame.cond
			cond = func(s State) bool { return !c(s) }
		}
		b.edges = append(b.edges, Edge{From: frame.decisionID, To: frame.mergeID, Label: label, When: cond})
	}

	merge := &NodeDefinition{ID: frame.mergeID, Kind: NodeKindDecision, Execute: func(ctx *ExecutionContext) (NodeResult, error) {
		return NodeResult{}, nil
	}}
	b.addNode(merge)
	b.last = frame.mergeID
	b.lastSet = true
	return b
}

// ParallelSpec configures a parallel fan-out (§4.2 parallel(...)).
type ParallelSpec struct {
	Branches     []*NodeDefinition
	Strategy     string // only "all" is implemented
	OutputMapper func(branchStates map[string]State) State
	Merge        func(branchStates map[string]State) State // alias; OutputMapper wins if both set
}

// Parallel emits a parallel node that fans out to every branch
// concurrently and joins via spec.OutputMapper (or Merge, its alias).
func (b *GraphBuilder) Parallel(spec ParallelSpec) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if spec.Strategy == "" {
		spec.Strategy = "all"
	}
	if spec.Strategy != "all" {
		return b.fail(fmt.Errorf("%w: %q", ErrUnsupportedStrategy, spec.Strategy))
	}
	mapper := spec.OutputMapper
	if mapper == nil {
		mapper = spec.Merge
	}

	branchIDs := make([]string, 0, len(spec.Branches))
	for _, n := range spec.Branches {
		if !b.addNode(n) {
			return b
		}
		branchIDs = append(branchIDs, n.ID)
	}

	node := &NodeDefinition{
		ID:               nextSynthID("parallel"),
		Kind:             NodeKindParallel,
		ParallelStrategy: spec.Strategy,
		OutputMapper:     mapper,
		Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{Goto: branchIDs}, nil
		},
	}
	if !b.addNode(node) {
		return b
	}
	if b.lastSet {
		b.addEdge(b.last, node.ID, "")
	} else {
		b.startNode = node.ID
	}
	for _, id := range branchIDs {
		b.addEdge(node.ID, id, "")
	}
	b.last = node.ID
	b.lastSet = true
	return b
}

// LoopSpec configures a loop body closed by a synthetic loop_check node
// (§4.2 loop(...)).
type LoopSpec struct {
	Until         Predicate
	MaxIterations int
}

// Loop closes bodyHead..bodyTail (already chained via Then before
// calling Loop) with a loop_check node: loop_check evaluates Until and
// MaxIterations, and routes back to bodyHead via a "loop-continue" edge
// until either stops the loop. No loop_start node is created; the body
// is entered through the edges that already lead to bodyHead.
func (b *GraphBuilder) Loop(bodyHead string, spec LoopSpec) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if _, ok := b.nodes[bodyHead]; !ok {
		return b.fail(fmt.Errorf("loop body head %q does not exist", bodyHead))
	}
	check := &NodeDefinition{
		ID:   nextSynthID("loop_check"),
		Kind: NodeKindDecision,
		Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{}, nil
		},
	}
	if !b.addNode(check) {
		return b
	}
	if b.lastSet {
		b.addEdge(b.last, check.ID, "")
	}
	b.edges = append(b.edges, Edge{From: check.ID, To: bodyHead, Label: "loop-continue", When: loopContinuePredicate(spec)})
	b.last = check.ID
	b.lastSet = true
	return b
}

func loopContinuePredicate(spec LoopSpec) Predicate {
	return func(state State) bool {
		iter, _ := toFloat(state["iteration"])
		if spec.MaxIterations > 0 && int(iter) >= spec.MaxIterations {
			return false
		}
		if spec.Until != nil && spec.Until(state) {
			return false
		}
		return true
	}
}

// Wait emits a node that produces a human_input_required signal
// carrying prompt, without a state update.
func (b *GraphBuilder) Wait(prompt string) *GraphBuilder {
	n := &NodeDefinition{
		ID:   nextSynthID("wait"),
		Kind: NodeKindWait,
		Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{Signals: []Signal{{Type: SignalHumanInputRequired, Payload: prompt}}}, nil
		},
	}
	return b.Then(n)
}

// AskUserOptions configures GraphBuilder.AskUser.
type AskUserOptions struct {
	Question string
	Options  []string
}

// AskUser emits a node that produces a human_input_required signal
// carrying the question and its options, without a state update.
func (b *GraphBuilder) AskUser(opts AskUserOptions) *GraphBuilder {
	n := &NodeDefinition{
		ID:   nextSynthID("ask_user"),
		Kind: NodeKindAskUser,
		Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			return NodeResult{Signals: []Signal{{Type: SignalHumanInputRequired, Payload: opts}}}, nil
		},
	}
	return b.Then(n)
}

// WithSchema attaches the per-field Annotation schema consulted by
// MergeState for every execution of the compiled graph.
func (b *GraphBuilder) WithSchema(s Schema) *GraphBuilder {
	b.schema = s
	return b
}

// Catch registers a graph-wide error-handler node id, stored in the
// compiled config's Metadata["errorHandlerId"].
func (b *GraphBuilder) Catch(handlerNodeID string) *GraphBuilder {
	b.errorHandlerID = handlerNodeID
	return b
}

// Subagent is a convenience constructor building a NodeDefinition whose
// Execute spawns a single sub-agent via the runtime dependency bag. When
// it's the first call on an empty builder, it auto-sets the start node.
func (b *GraphBuilder) Subagent(id string, opts SubagentSpawnOptions) *GraphBuilder {
	n := &NodeDefinition{
		ID:   id,
		Kind: NodeKindAgent,
		Execute: func(ctx *ExecutionContext) (NodeResult, error) {
			if ctx.Runtime == nil || ctx.Runtime.SpawnSubagent == nil {
				return NodeResult{}, missingRuntimeDepError("spawnSubagent")
			}
			res, err := ctx.Runtime.SpawnSubagent(ctx, opts)
			if err != nil {
				return NodeResult{}, err
			}
			return NodeResult{Delta: State{KeyOutputs: State{id: res}}}, nil
		},
	}
	if !b.lastSet {
		return b.Start(n)
	}
	return b.Then(n)
}

// Tool is a convenience constructor for a tool-kind node. When it's the
// first call on an empty builder, it auto-sets the start node.
func (b *GraphBuilder) Tool(id string, exec ExecuteFunc) *GraphBuilder {
	n := &NodeDefinition{ID: id, Kind: NodeKindTool, Execute: exec}
	if !b.lastSet {
		return b.Start(n)
	}
	return b.Then(n)
}

// Compile freezes nodes/edges/start, infers the terminal set, validates
// referential integrity (§3 invariants i-iv), and merges cfg with
// builder defaults.
func (b *GraphBuilder) Compile(cfg *Config) (*CompiledGraph, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.startNode == "" {
		return nil, ErrNoStartNode
	}
	if len(b.ifStack) > 0 {
		return nil, fmt.Errorf("%w: unclosed if", ErrUnbalancedBuilder)
	}

	terminal := make(map[string]bool, len(b.nodes))
	hasOutgoing := make(map[string]bool, len(b.nodes))
	for _, e := range b.edges {
		if _, ok := b.nodes[e.From]; !ok {
			return nil, fmt.Errorf("edge references unknown node %q", e.From)
		}
		if _, ok := b.nodes[e.To]; !ok {
			return nil, fmt.Errorf("edge references unknown node %q", e.To)
		}
		hasOutgoing[e.From] = true
	}
	for id := range b.nodes {
		if !hasOutgoing[id] {
			terminal[id] = true
		}
	}

	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Metadata == nil {
		cfg.Metadata = make(map[string]any)
	}
	if b.errorHandlerID != "" {
		if _, ok := b.nodes[b.errorHandlerID]; !ok {
			return nil, fmt.Errorf("error handler %q does not exist", b.errorHandlerID)
		}
		cfg.Metadata["errorHandlerId"] = b.errorHandlerID
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = 1000
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 8
	}

	return &CompiledGraph{
		Nodes:     b.nodes,
		Edges:     b.edges,
		StartNode: b.startNode,
		Terminal:  terminal,
		Schema:    b.schema,
		Config:    cfg,
	}, nil
}
