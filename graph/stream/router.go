// Package stream projects graph.StepResult values into the four
// caller-facing stream modes (§4.4): values, updates, events, debug.
package stream

import "github.com/dshills/graphkit/graph"

// Mode names one of the four projections a caller can request.
type Mode string

const (
	ModeValues  Mode = "values"
	ModeUpdates Mode = "updates"
	ModeEvents  Mode = "events"
	ModeDebug   Mode = "debug"
)

// ValuesPayload is emitted for every step, always.
type ValuesPayload struct {
	NodeID string
	State  graph.State
}

// UpdatesPayload is emitted when a step's delta is present and
// non-empty.
type UpdatesPayload struct {
	NodeID string
	Update graph.State
}

// EventsPayload is emitted once per custom event a node raised via
// ExecutionContext.Emit during its execution.
type EventsPayload struct {
	NodeID string
	Event  graph.CustomEvent
}

// DebugTrace carries the per-step execution metadata the debug mode
// projects.
type DebugTrace struct {
	ExecutionTime int64 // milliseconds
	RetryCount    int
	ModelUsed     string
	StateSnapshot graph.State
}

// DebugPayload is emitted for every step, always.
type DebugPayload struct {
	NodeID string
	Trace  DebugTrace
}

// Projected is one typed event produced by Router.Project, tagged by
// the mode that produced it.
type Projected struct {
	Mode    Mode
	Values  *ValuesPayload
	Updates *UpdatesPayload
	Events  *EventsPayload
	Debug   *DebugPayload
}

// Router projects StepResults into the requested, de-duplicated list of
// modes. The default mode set is ["values"].
type Router struct {
	Modes []Mode
}

// NewRouter builds a Router for the given modes, de-duplicating and
// defaulting to ["values"] when none are given.
func NewRouter(modes ...Mode) *Router {
	if len(modes) == 0 {
		modes = []Mode{ModeValues}
	}
	seen := make(map[Mode]bool, len(modes))
	var out []Mode
	for _, m := range modes {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return &Router{Modes: out}
}

// Project returns every Projected event a single StepResult produces,
// in the order the router's Modes were given (events within one step
// are emitted in mode order, per §4.4). A synthetic terminal step
// (NodeID == "") produces no events beyond the final snapshot and is
// left to the caller to detect via step.Snapshot.Status.
func (r *Router) Project(step graph.StepResult) []Projected {
	if step.NodeID == "" {
		return nil
	}

	var out []Projected
	for _, mode := range r.Modes {
		switch mode {
		case ModeValues:
			out = append(out, Projected{Mode: mode, Values: &ValuesPayload{NodeID: step.NodeID, State: step.State}})
		case ModeUpdates:
			if len(step.Result.Delta) > 0 {
				out = append(out, Projected{Mode: mode, Updates: &UpdatesPayload{NodeID: step.NodeID, Update: step.Result.Delta}})
			}
		case ModeEvents:
			for _, e := range step.CustomEvents {
				out = append(out, Projected{Mode: mode, Events: &EventsPayload{NodeID: step.NodeID, Event: e}})
			}
		case ModeDebug:
			out = append(out, Projected{Mode: mode, Debug: &DebugPayload{
				NodeID: step.NodeID,
				Trace: DebugTrace{
					ExecutionTime: step.Duration.Milliseconds(),
					RetryCount:    step.RetryCount,
					ModelUsed:     step.ModelUsed,
					StateSnapshot: step.State.Clone(),
				},
			}})
		}
	}
	return out
}
