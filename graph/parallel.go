package graph

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// runParallel executes every branch listed in branchIDs concurrently
// (§4.3 "Parallel mode"), each as a single-node nested traversal off of
// baseState, and joins with the parallel node's OutputMapper. Branch
// completion order does not affect the merged result — the mapper is
// required to be order-insensitive.
func (ex *Executor) runParallel(ctx context.Context, parallelNode *NodeDefinition, branchIDs []string, baseState State, snap *ExecutionSnapshot, onEvent func(CustomEvent)) (State, error) {
	if len(branchIDs) == 0 {
		return baseState, errNoReadyBranch
	}

	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(map[string]State, len(branchIDs))
	var mu sync.Mutex
	var inflight int64

	metrics := ex.graph.Config.Metrics

	g, gctx := errgroup.WithContext(branchCtx)
	for _, id := range branchIDs {
		id := id
		g.Go(func() error {
			node, ok := ex.graph.Node(id)
			if !ok {
				return missingRuntimeDepError("branch node " + id)
			}
			if metrics != nil {
				metrics.UpdateInflightNodes(int(atomic.AddInt64(&inflight, 1)))
				defer metrics.UpdateInflightNodes(int(atomic.AddInt64(&inflight, -1)))
			}
			branchState := baseState.Clone()
			localSnap := ExecutionSnapshot{ExecutionID: snap.ExecutionID, State: branchState}
			step, _, err := ex.executeNode(gctx, node, &branchState, &localSnap, onEvent)
			if err != nil {
				if parallelNode.ParallelStrategy == "all" {
					return err
				}
				mu.Lock()
				results[id] = branchState
				mu.Unlock()
				return nil
			}
			mu.Lock()
			results[id] = step.State
			snap.Visited = append(snap.Visited, id)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return baseState, err
	}

	if parallelNode.OutputMapper == nil {
		return baseState, nil
	}

	if metrics != nil {
		detectMergeConflicts(results, branchIDs, snap.ExecutionID, metrics)
	}

	delta := parallelNode.OutputMapper(results)
	return MergeState(baseState, delta, ex.graph.Schema), nil
}

// detectMergeConflicts flags fields where two or more branches wrote
// different values for the same top-level key, information the
// OutputMapper's own merge choice would otherwise silently absorb.
func detectMergeConflicts(results map[string]State, branchIDs []string, executionID string, metrics MetricsRecorder) {
	seen := make(map[string]any)
	reported := make(map[string]bool)
	for _, id := range branchIDs {
		state, ok := results[id]
		if !ok {
			continue
		}
		for key, value := range state {
			if prior, ok := seen[key]; ok {
				if !reported[key] && !valuesEqual(prior, value) {
					metrics.IncrementMergeConflicts(executionID, key)
					reported[key] = true
				}
			} else {
				seen[key] = value
			}
		}
	}
}

func valuesEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return as == bs
	}
	return false
}
