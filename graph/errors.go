package graph

import (
	"errors"
	"fmt"
)

// ErrorKind names one of the taxonomy entries in §7: not a concrete
// error type, but a tag attached to an ExecutionError so callers can
// distinguish propagation behavior without string matching messages.
type ErrorKind string

const (
	ErrorKindSchemaValidation ErrorKind = "schema_validation"
	ErrorKindNodeExecution    ErrorKind = "node_execution"
	ErrorKindMissingRecovery  ErrorKind = "missing_recovery"
	ErrorKindMissingRuntime   ErrorKind = "missing_runtime_dep"
	ErrorKindMaxSteps         ErrorKind = "max_steps_exceeded"
)

// Sentinels for conditions that are fatal regardless of retry policy —
// never routed through backoff, always surfaced directly.
var (
	ErrMaxStepsExceeded    = errors.New("execution exceeded maximum steps limit")
	ErrInvalidRetryPolicy  = errors.New("invalid retry policy")
	ErrUnsupportedStrategy = errors.New("unsupported parallel strategy")
	ErrNoStartNode         = errors.New("graph has no start node")
	ErrDuplicateNode       = errors.New("duplicate node id")
	ErrUnbalancedBuilder   = errors.New("unbalanced if/else/endif call")
)

// ExecutionError is the record appended to snapshot.errors once per node
// failure, after that node's retries (if any) are exhausted, and for
// run-level failures such as max-steps; Attempt is the number of retries
// made before the failure (§7: "each entry {nodeId, error, timestamp, attempt}").
// It also implements error so it can be returned and wrapped like any
// other Go error.
type ExecutionError struct {
	NodeID    string
	Kind      ErrorKind
	Err       error
	Timestamp string
	Attempt   int
}

func (e *ExecutionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("node %q: %v", e.NodeID, e.Err)
	}
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func newExecutionError(nodeID string, kind ErrorKind, err error, attempt int) *ExecutionError {
	return &ExecutionError{
		NodeID:    nodeID,
		Kind:      kind,
		Err:       err,
		Timestamp: nowISO(),
		Attempt:   attempt,
	}
}

// missingRecoveryError formats the exact message scenario S4 asserts
// on: an onError goto targeting a node that isn't recovery-marked.
func missingRecoveryError(nodeID string) error {
	return fmt.Errorf("onError goto target %q must set isRecoveryNode: true", nodeID)
}

// missingRuntimeDepError formats a descriptive fatal message for a node
// that needs a runtime capability the graph wasn't configured with.
func missingRuntimeDepError(dep string) error {
	return fmt.Errorf("missing runtime dependency: %s", dep)
}
