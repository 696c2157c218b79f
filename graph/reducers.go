package graph

// Built-in reducers (§4.1). Each is a pure, deterministic Reducer usable
// directly in a Schema, or via the parametric constructors below
// (MergeByIDReducer). Nodes never call these directly — MergeState looks
// them up from the Schema attached to the CompiledGraph.

// ReplaceReducer discards current and returns update. This is the
// default reducer for any field without an explicit Annotation.Reducer.
func ReplaceReducer(_, update any) any {
	return update
}

// ConcatReducer appends update's elements to current's, treating both as
// []any. A non-slice, non-nil update is appended as a single element.
// A nil current is treated as an empty slice.
func ConcatReducer(current, update any) any {
	var out []any
	if cur, ok := current.([]any); ok {
		out = append(out, cur...)
	}
	switch upd := update.(type) {
	case nil:
		// nothing to append
	case []any:
		out = append(out, upd...)
	default:
		out = append(out, upd)
	}
	return out
}

// MergeReducer performs a shallow object merge: keys present in update
// overwrite the same key in current; keys only in current are preserved.
func MergeReducer(current, update any) any {
	merged := map[string]any{}
	if cur, ok := toMap(current); ok {
		for k, v := range cur {
			merged[k] = v
		}
	}
	if upd, ok := toMap(update); ok {
		for k, v := range upd {
			merged[k] = v
		}
	}
	return merged
}

// MergeByIDReducer returns a reducer performing an identity-keyed upsert:
// current and update are both treated as []any of map-like records keyed
// by idField. Records in update replace the record with the same id in
// current (in place, preserving its original position); new ids are
// appended, preserving their order in update.
func MergeByIDReducer(idField string) Reducer {
	return func(current, update any) any {
		base, _ := current.([]any)
		incoming, _ := update.([]any)
		if len(incoming) == 0 {
			return append([]any{}, base...)
		}

		index := make(map[any]int, len(base))
		out := append([]any{}, base...)
		for i, rec := range out {
			if m, ok := toMap(rec); ok {
				index[m[idField]] = i
			}
		}

		for _, rec := range incoming {
			m, ok := toMap(rec)
			if !ok {
				out = append(out, rec)
				continue
			}
			id := m[idField]
			if i, exists := index[id]; exists {
				out[i] = rec
			} else {
				index[id] = len(out)
				out = append(out, rec)
			}
		}
		return out
	}
}

// MaxReducer keeps the larger of current and update, compared as
// float64. A non-numeric current is replaced by update; a non-numeric
// update leaves current unchanged.
func MaxReducer(current, update any) any {
	cf, cok := toFloat(current)
	uf, uok := toFloat(update)
	if !cok {
		return update
	}
	if !uok {
		return current
	}
	if uf > cf {
		return update
	}
	return current
}

// MinReducer keeps the smaller of current and update, compared as
// float64. A non-numeric current is replaced by update; a non-numeric
// update leaves current unchanged.
func MinReducer(current, update any) any {
	cf, cok := toFloat(current)
	uf, uok := toFloat(update)
	if !cok {
		return update
	}
	if !uok {
		return current
	}
	if uf < cf {
		return update
	}
	return current
}

// SumReducer adds update to current, both coerced to float64. A
// non-numeric current is treated as zero.
func SumReducer(current, update any) any {
	cf, _ := toFloat(current)
	uf, ok := toFloat(update)
	if !ok {
		return current
	}
	return cf + uf
}

// OrReducer returns the logical OR of current and update, coerced to
// bool via truthiness (nil, false, empty strings, float64 or int zero,
// and empty maps or []any slices are falsy; every other value, including
// a zero of another numeric type, is truthy).
func OrReducer(current, update any) any {
	return truthy(current) || truthy(update)
}

// AndReducer returns the logical AND of current and update, coerced to
// bool via truthiness.
func AndReducer(current, update any) any {
	return truthy(current) && truthy(update)
}

// IfDefinedReducer applies update only when it is non-nil; otherwise
// current is preserved unchanged. This lets a node omit a field from its
// delta without accidentally clearing it when the field's zero value
// (e.g. false, 0, "") is itself meaningful elsewhere.
func IfDefinedReducer(current, update any) any {
	if update == nil {
		return current
	}
	return update
}

func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case State:
		return map[string]any(m), true
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		if m, ok := toMap(v); ok {
			return len(m) > 0
		}
		if sl, ok := v.([]any); ok {
			return len(sl) > 0
		}
		return true
	}
}
