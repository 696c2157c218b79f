// Package subagent implements the spawn/spawnParallel bridge (C9): each
// spawn opens a model.Session, drives it to completion under a timeout,
// and always destroys the session on exit.
package subagent

import (
	"context"
	"strings"
	"time"

	"github.com/dshills/graphkit/graph"
	"github.com/dshills/graphkit/graph/model"
)

const maxOutputChars = 4000

// ProviderLookup resolves a model identifier (or agent type) to the
// ChatModel that should back a spawned session.
type ProviderLookup func(modelOrAgentType string) (model.ChatModel, bool)

// Bridge spawns sub-agent sessions on behalf of the Runtime facade.
type Bridge struct {
	Providers ProviderLookup

	// OnSpawnEvent, if set, is called with progress markers during a
	// spawn (e.g. "started", "truncated", "timed_out"), mirroring
	// graph/emit's event shape without importing it directly.
	OnSpawnEvent func(agentID, marker string)
}

// NewBridge builds a Bridge resolving models via lookup.
func NewBridge(lookup ProviderLookup) *Bridge {
	return &Bridge{Providers: lookup}
}

// Spawn runs one sub-agent to completion: opens a session, sends the
// task, truncates oversized output, and always destroys the session
// before returning — on success, on error, and on timeout alike. The
// per-spawn timeout races an internal deadline against the caller's
// context so a parent cancellation still takes effect promptly.
func (b *Bridge) Spawn(ctx context.Context, opts graph.SubagentSpawnOptions) (graph.SubagentResult, error) {
	started := time.Now()

	chatModel, ok := b.resolve(opts)
	if !ok {
		return graph.SubagentResult{AgentID: opts.AgentID, Success: false, Error: "no provider for agent type/model"}, nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	spawnCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session := model.NewSession(chatModel, opts.SystemPrompt, toolSpecs(opts.Tools))
	defer session.Destroy()

	b.emit(opts.AgentID, "started")

	out, err := session.Send(spawnCtx, opts.Task)
	duration := time.Since(started).Milliseconds()

	if err != nil {
		if spawnCtx.Err() != nil {
			b.emit(opts.AgentID, "timed_out")
			return graph.SubagentResult{AgentID: opts.AgentID, Success: false, Error: "spawn timed out", DurationMS: duration}, nil
		}
		return graph.SubagentResult{AgentID: opts.AgentID, Success: false, Error: err.Error(), DurationMS: duration}, nil
	}

	text := out.Text
	if len(text) > maxOutputChars {
		text = text[:maxOutputChars] + "…"
		b.emit(opts.AgentID, "truncated")
	}

	return graph.SubagentResult{
		AgentID:    opts.AgentID,
		Success:    true,
		Output:     text,
		ToolUses:   len(out.ToolCalls),
		DurationMS: duration,
	}, nil
}

// SpawnParallel runs every spawn concurrently and joins on settled-all:
// a failing or timed-out branch is reflected in its own result rather
// than aborting the others (generalizing the teacher's fail-fast "all"
// strategy, which sub-agent fan-out must not inherit).
func (b *Bridge) SpawnParallel(ctx context.Context, opts []graph.SubagentSpawnOptions) ([]graph.SubagentResult, error) {
	results := make([]graph.SubagentResult, len(opts))
	done := make(chan int, len(opts))

	for i, o := range opts {
		i, o := i, o
		go func() {
			res, _ := b.Spawn(ctx, o)
			results[i] = res
			done <- i
		}()
	}
	for range opts {
		<-done
	}
	return results, nil
}

func (b *Bridge) resolve(opts graph.SubagentSpawnOptions) (model.ChatModel, bool) {
	if b.Providers == nil {
		return nil, false
	}
	if opts.Model != "" {
		if m, ok := b.Providers(opts.Model); ok {
			return m, true
		}
	}
	return b.Providers(opts.AgentName)
}

func (b *Bridge) emit(agentID, marker string) {
	if b.OnSpawnEvent != nil {
		b.OnSpawnEvent(agentID, marker)
	}
}

func toolSpecs(names []string) []model.ToolSpec {
	if len(names) == 0 {
		return nil
	}
	specs := make([]model.ToolSpec, 0, len(names))
	for _, n := range names {
		specs = append(specs, model.ToolSpec{Name: strings.TrimSpace(n)})
	}
	return specs
}
