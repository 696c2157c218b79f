package graph

// Edge is a directed transition between two nodes, optionally guarded by
// a condition over the current state. Edges are evaluated in insertion
// order (§4.3 step 11): the first edge from the current node whose
// condition is absent or returns true is followed.
type Edge struct {
	From string
	To   string

	// When is nil for an unconditional edge. A non-nil predicate must
	// be pure: it observes only the given state and returns
	// deterministically.
	When Predicate

	// Label is a human-readable tag such as "if-true", "if-false", or
	// "loop-continue", set by the builder on synthetic edges.
	Label string
}

// Predicate evaluates state to decide whether an edge should be
// followed.
type Predicate func(state State) bool
