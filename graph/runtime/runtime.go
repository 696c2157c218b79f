// Package runtime implements the Runtime facade (C8): a provider
// registry, sub-agent registry, workflow resolver, and the execute/stream
// entry points that inject these as graph.RuntimeDeps into a compiled
// graph's Config unless the caller already supplied its own.
package runtime

import (
	"context"
	"strings"

	"github.com/dshills/graphkit/graph"
	"github.com/dshills/graphkit/graph/model"
	"github.com/dshills/graphkit/graph/subagent"
)

// Provider names a model backend and the models it serves.
type Provider struct {
	Name            string
	ChatModel       model.ChatModel
	SupportedModels []string
}

// SubagentMeta describes a registered sub-agent type available to
// GraphBuilder.Subagent nodes.
type SubagentMeta struct {
	Name         string
	Description  string
	DefaultModel string
}

// Runtime is the facade wiring providers, sub-agents, and nested
// workflows into graph executions. The zero value is usable; register
// providers and sub-agents before calling Execute/Stream.
type Runtime struct {
	providers map[string]*Provider
	order     []string

	subagents map[string]SubagentMeta
	workflows map[string]*graph.CompiledGraph

	DefaultModel   string
	Checkpointer   graph.Checkpointer
	MaxSteps       int
	Metrics        graph.MetricsRecorder
	CostTracker    *graph.CostTracker
}

// New builds an empty Runtime.
func New() *Runtime {
	return &Runtime{
		providers: make(map[string]*Provider),
		subagents: make(map[string]SubagentMeta),
		workflows: make(map[string]*graph.CompiledGraph),
	}
}

// RegisterProvider adds a provider; the first one registered becomes the
// fallback used when a model has no explicit "provider/" prefix and no
// sub-agent setting names one (§4.8's provider-selection order).
func (r *Runtime) RegisterProvider(p *Provider) {
	if _, exists := r.providers[p.Name]; !exists {
		r.order = append(r.order, p.Name)
	}
	r.providers[p.Name] = p
}

// RegisterSubagent adds a named sub-agent type.
func (r *Runtime) RegisterSubagent(meta SubagentMeta) {
	r.subagents[meta.Name] = meta
}

// RegisterWorkflow makes a compiled subgraph resolvable by name, for
// GraphBuilder-authored subgraph nodes that reference another workflow.
func (r *Runtime) RegisterWorkflow(name string, g *graph.CompiledGraph) {
	r.workflows[name] = g
}

// clientProvider picks a provider for a model id: explicit "provider/"
// prefix, else the model name itself matched against SupportedModels,
// else the first registered provider.
func (r *Runtime) clientProvider(modelOrAgentType string) (any, bool) {
	if provider, model, ok := strings.Cut(modelOrAgentType, "/"); ok {
		if p, exists := r.providers[provider]; exists {
			return p.ChatModel, model != ""
		}
	}
	for _, name := range r.order {
		p := r.providers[name]
		for _, m := range p.SupportedModels {
			if m == modelOrAgentType {
				return p.ChatModel, true
			}
		}
	}
	if len(r.order) > 0 {
		return r.providers[r.order[0]].ChatModel, true
	}
	return nil, false
}

func (r *Runtime) chatModelLookup(modelOrAgentType string) (model.ChatModel, bool) {
	v, ok := r.clientProvider(modelOrAgentType)
	if !ok {
		return nil, false
	}
	cm, ok := v.(model.ChatModel)
	return cm, ok
}

// deps builds the graph.RuntimeDeps bag for one execution, backed by
// this Runtime's registries.
func (r *Runtime) deps() *graph.RuntimeDeps {
	bridge := subagent.NewBridge(r.chatModelLookup)

	return &graph.RuntimeDeps{
		ClientProvider: r.clientProvider,
		WorkflowResolver: func(name string) (*graph.CompiledGraph, bool) {
			g, ok := r.workflows[name]
			return g, ok
		},
		SpawnSubagent: func(_ *graph.ExecutionContext, opts graph.SubagentSpawnOptions) (graph.SubagentResult, error) {
			return bridge.Spawn(context.Background(), opts)
		},
		SpawnSubagentParallel: func(_ *graph.ExecutionContext, opts []graph.SubagentSpawnOptions) ([]graph.SubagentResult, error) {
			return bridge.SpawnParallel(context.Background(), opts)
		},
	}
}

// Execute compiles-ready graphs for a single run: it fills in Config
// fields the caller left unset (Runtime dep bag, default model,
// checkpointer, max steps) and runs the graph to completion.
func (r *Runtime) Execute(ctx context.Context, g *graph.CompiledGraph, executionID string, initial graph.State) (graph.ExecutionResult, error) {
	r.applyDefaults(g)
	return graph.NewExecutor(g).Run(ctx, executionID, initial)
}

// Stream behaves like Execute but returns the step-by-step channel.
func (r *Runtime) Stream(ctx context.Context, g *graph.CompiledGraph, executionID string, initial graph.State, onEvent func(graph.CustomEvent)) (<-chan graph.StepResult, error) {
	r.applyDefaults(g)
	return graph.NewExecutor(g).Stream(ctx, executionID, initial, onEvent)
}

func (r *Runtime) applyDefaults(g *graph.CompiledGraph) {
	if g.Config == nil {
		g.Config = graph.NewConfig()
	}
	if g.Config.Runtime == nil {
		g.Config.Runtime = r.deps()
	}
	if g.Config.DefaultModel == "" {
		g.Config.DefaultModel = r.DefaultModel
	}
	if g.Config.Checkpointer == nil {
		g.Config.Checkpointer = r.Checkpointer
	}
	if g.Config.MaxSteps == 0 && r.MaxSteps > 0 {
		g.Config.MaxSteps = r.MaxSteps
	}
	if g.Config.Metrics == nil {
		g.Config.Metrics = r.Metrics
	}
	if g.Config.CostTracker == nil {
		g.Config.CostTracker = r.CostTracker
	}
}
