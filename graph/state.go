// Package graph provides the core graph execution engine for graphkit.
package graph

import (
	"time"
)

// Reserved state keys that every execution carries regardless of the
// workflow's domain fields. They are populated by InitState and protected
// by MergeState: ExecutionID is never overwritten by a delta, LastUpdated
// is refreshed on every merge, and Outputs is shallow-merged rather than
// replaced so per-node outputs accumulate across steps.
const (
	KeyExecutionID = "executionId"
	KeyLastUpdated = "lastUpdated"
	KeyOutputs     = "outputs"
)

// State is the typed, per-execution value carried and mutated across
// nodes. It is a dynamic field map rather than a Go struct so that a
// compiled graph can be shared across workflows with different domain
// shapes (LangGraph-style channels), while the always-present fields
// (executionId, lastUpdated, outputs) give every execution a uniform
// identity and audit trail.
//
// State is treated as immutable per step: a node produces a Delta (a
// partial State), and the executor merges that delta into a fresh copy
// via MergeState. Nothing outside the checkpointer retains the previous
// value.
type State map[string]any

// Clone returns a deep-enough copy of s suitable for snapshotting: the
// top-level map is always copied, and values that are themselves State,
// map[string]any, or []any are recursively copied so a checkpointer or a
// parallel branch cannot observe mutations made by another branch.
func (s State) Clone() State {
	return cloneValue(s).(State)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case State:
		out := make(State, len(val))
		for k, v := range val {
			out[k] = cloneValue(v)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = cloneValue(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = cloneValue(v)
		}
		return out
	default:
		return v
	}
}

// Annotation describes how a single state field is initialized and how
// concurrent or sequential updates to it are reduced into the base state.
// It generalizes the teacher engine's single whole-state Reducer[S] into
// one reducer per declared field, matching the per-channel Annotation
// model this spec is built on.
type Annotation struct {
	// Default produces the field's zero value for a fresh execution. If
	// nil, the field has no default and is simply absent until a node
	// sets it.
	Default func() any

	// Reducer merges an incoming update into the field's current value.
	// If nil, ReplaceReducer is used.
	Reducer Reducer
}

// Schema maps field name to its Annotation. A Schema is attached to a
// CompiledGraph and consulted by MergeState: fields present in the
// Schema use their declared reducer; fields absent from it are replaced
// wholesale, matching §4.1's "outside the schema, perform a replace"
// rule.
type Schema map[string]Annotation

// Reducer is a pure binary merge function for a single state field:
// given the field's current value and an incoming update value, it
// returns the new value. Reducers must be deterministic and side-effect
// free; merging the same delta twice into the same base must yield the
// same result.
type Reducer func(current, update any) any

// InitState builds the initial state for a fresh execution: reserved
// fields are populated, every annotated field receives its Default (if
// any), and the optional caller-supplied partial state is merged on top
// (the caller cannot override executionId).
func InitState(executionID string, schema Schema, initial State) State {
	s := make(State, len(schema)+3)
	s[KeyExecutionID] = executionID
	s[KeyLastUpdated] = nowISO()
	s[KeyOutputs] = State{}

	for field, ann := range schema {
		if ann.Default != nil {
			s[field] = ann.Default()
		}
	}

	if initial != nil {
		merged := MergeState(s, initial, schema)
		merged[KeyExecutionID] = executionID
		return merged
	}
	return s
}

// MergeState merges delta into base per §4.1: for each key in delta,
// apply the declared reducer (or replace, if the key is outside schema);
// executionId is never overwritten; outputs is shallow-merged unless the
// schema declares an explicit reducer for it; lastUpdated is always
// refreshed, even for an empty delta.
func MergeState(base, delta State, schema Schema) State {
	out := make(State, len(base)+len(delta))
	for k, v := range base {
		out[k] = v
	}

	for k, v := range delta {
		if k == KeyExecutionID {
			continue
		}
		if k == KeyOutputs {
			if ann, ok := schema[k]; ok && ann.Reducer != nil {
				out[k] = ann.Reducer(out[k], v)
			} else {
				out[k] = mergeOutputs(out[k], v)
			}
			continue
		}

		if ann, ok := schema[k]; ok {
			reducer := ann.Reducer
			if reducer == nil {
				reducer = ReplaceReducer
			}
			out[k] = reducer(out[k], v)
			continue
		}
		out[k] = v
	}

	out[KeyLastUpdated] = nowISO()
	return out
}

func mergeOutputs(current, update any) any {
	merged := State{}
	if cur, ok := current.(State); ok {
		for k, v := range cur {
			merged[k] = v
		}
	} else if cur, ok := current.(map[string]any); ok {
		for k, v := range cur {
			merged[k] = v
		}
	}
	if upd, ok := update.(State); ok {
		for k, v := range upd {
			merged[k] = v
		}
	} else if upd, ok := update.(map[string]any); ok {
		for k, v := range upd {
			merged[k] = v
		}
	}
	return merged
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
