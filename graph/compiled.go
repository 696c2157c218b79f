package graph

import (
	"time"
)

// MetricsRecorder is the subset of graph/metrics.Recorder the executor
// calls into. Defined here (rather than importing graph/metrics
// directly) so the core package stays decoupled from any particular
// metrics backend, the same pattern Checkpointer uses.
type MetricsRecorder interface {
	RecordStepLatency(executionID, nodeID string, latency time.Duration, status string)
	IncrementRetries(executionID, nodeID string)
	UpdateInflightNodes(count int)
	IncrementMergeConflicts(executionID, field string)
}

// Config is the compiled graph's immutable configuration (§3
// CompiledGraph): checkpointer, default model, graph-level output
// schema, concurrency and context-window limits, progress callback, and
// the runtime dependency bag injected by the Runtime facade.
type Config struct {
	Checkpointer Checkpointer
	Metrics      MetricsRecorder
	CostTracker  *CostTracker

	DefaultModel         string
	OutputSchema         *ValidationSchema
	MaxConcurrent        int
	ContextWindowPercent float64
	MaxSteps             int
	Timeout              time.Duration
	AutoCheckpoint       bool

	OnProgress func(StepResult)

	Runtime *RuntimeDeps

	Metadata map[string]any
}

// errorHandlerID reads the graph-wide error handler node id registered
// by GraphBuilder.Catch, stored under Metadata["errorHandlerId"].
func (c *Config) errorHandlerID() (string, bool) {
	if c.Metadata == nil {
		return "", false
	}
	id, ok := c.Metadata["errorHandlerId"].(string)
	return id, ok && id != ""
}

// RuntimeDeps are the external collaborators injected by the Runtime
// facade (C8) into a compiled graph's Config before execution: provider
// lookup, workflow resolution, and the sub-agent bridge.
type RuntimeDeps struct {
	ClientProvider func(agentType string) (any, bool)
	WorkflowResolver func(name string) (*CompiledGraph, bool)

	SpawnSubagent         func(ctx *ExecutionContext, opts SubagentSpawnOptions) (SubagentResult, error)
	SpawnSubagentParallel func(ctx *ExecutionContext, opts []SubagentSpawnOptions) ([]SubagentResult, error)

	SubagentRegistry interface {
		Get(name string) (any, bool)
		GetAll() []any
	}

	NotifyTaskStatusChange func(taskIDs []string, newStatus string, tasksSnapshot any)
}

// CompiledGraph is the immutable, validated artefact produced by
// GraphBuilder.Compile. Every invariant in spec §3 is checked once at
// compile time. Ids a node names only at run time (an ErrorActionGoto
// target, the branch ids of a parallel fan-out) are looked up by the
// executor when it reaches them.
type CompiledGraph struct {
	Nodes     map[string]*NodeDefinition
	Edges     []Edge
	StartNode string
	Terminal  map[string]bool

	Schema Schema
	Config *Config
}

// Node looks up a node by id.
func (g *CompiledGraph) Node(id string) (*NodeDefinition, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// IsTerminal reports whether id was inferred terminal at Compile, that
// is, whether it had no outgoing edges then.
func (g *CompiledGraph) IsTerminal(id string) bool {
	return g.Terminal[id]
}

// outgoing returns edges whose From equals id, in insertion order.
func (g *CompiledGraph) outgoing(id string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// AddRecoveryRoute mutates a compiled graph to add a node and an edge
// targeting it, the narrow documented escape hatch (§9 "Builder →
// immutable compiled graph") used by tests that patch in a goto target
// after compile. Production paths must not call this.
func (g *CompiledGraph) AddRecoveryRoute(node *NodeDefinition, from string) {
	node.IsRecoveryNode = true
	g.Nodes[node.ID] = node
	g.Edges = append(g.Edges, Edge{From: from, To: node.ID})
	delete(g.Terminal, from)
}
