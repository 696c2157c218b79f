package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dshills/graphkit/graph"
)

// sequentialRecord is the on-disk shape of a session-sequential
// checkpoint file (§6 "Session-sequential").
type sequentialRecord struct {
	ExecutionID      string      `json:"executionId"`
	Label            string      `json:"label"`
	Timestamp        time.Time   `json:"timestamp"`
	CheckpointNumber int         `json:"checkpointNumber"`
	State            graph.State `json:"state"`
}

// SessionSequentialCheckpointer assigns filenames node-NNN.json,
// zero-padded to three digits, via an internal monotonic counter.
// Loading updates the counter to the highest observed value so writes
// after a resume continue the sequence without collisions.
type SessionSequentialCheckpointer struct {
	root string

	mu      sync.Mutex
	counter map[string]int // executionID -> highest checkpoint number seen
}

func NewSessionSequentialCheckpointer(root string) *SessionSequentialCheckpointer {
	return &SessionSequentialCheckpointer{root: root, counter: make(map[string]int)}
}

func (s *SessionSequentialCheckpointer) dir(executionID string) string {
	return filepath.Join(s.root, sanitize(executionID))
}

func (s *SessionSequentialCheckpointer) filename(n int) string {
	return fmt.Sprintf("node-%03d.json", n)
}

func (s *SessionSequentialCheckpointer) Save(_ context.Context, executionID string, state graph.State, label string) error {
	if err := os.MkdirAll(s.dir(executionID), 0o755); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.counter[executionID]; !ok {
		s.syncCounterLocked(executionID)
	}
	s.counter[executionID]++
	n := s.counter[executionID]
	s.mu.Unlock()

	rec := sequentialRecord{
		ExecutionID:      executionID,
		Label:            label,
		Timestamp:        time.Now().UTC(),
		CheckpointNumber: n,
		State:            state,
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir(executionID), s.filename(n)), raw, 0o644)
}

// syncCounterLocked scans the execution's directory for the highest
// node-NNN.json already on disk, so a resumed session doesn't overwrite
// or collide with checkpoints from a prior process.
func (s *SessionSequentialCheckpointer) syncCounterLocked(executionID string) {
	entries, err := os.ReadDir(s.dir(executionID))
	if err != nil {
		s.counter[executionID] = 0
		return
	}
	highest := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "node-") || filepath.Ext(name) != ".json" {
			continue
		}
		numPart := strings.TrimSuffix(strings.TrimPrefix(name, "node-"), ".json")
		if n, err := strconv.Atoi(numPart); err == nil && n > highest {
			highest = n
		}
	}
	s.counter[executionID] = highest
}

func (s *SessionSequentialCheckpointer) readRecord(executionID, filename string) (sequentialRecord, bool, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir(executionID), filename))
	if os.IsNotExist(err) {
		return sequentialRecord{}, false, nil
	}
	if err != nil {
		return sequentialRecord{}, false, err
	}
	var rec sequentialRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return sequentialRecord{}, false, err
	}
	return rec, true, nil
}

func (s *SessionSequentialCheckpointer) LoadByLabel(_ context.Context, executionID, label string) (graph.State, bool, error) {
	entries, err := os.ReadDir(s.dir(executionID))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	for _, e := range entries {
		rec, ok, err := s.readRecord(executionID, e.Name())
		if err != nil {
			return nil, false, err
		}
		if ok && rec.Label == label {
			return rec.State, true, nil
		}
	}
	return nil, false, nil
}

func (s *SessionSequentialCheckpointer) Load(_ context.Context, executionID string) (graph.State, bool, error) {
	entries, err := os.ReadDir(s.dir(executionID))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var latest *sequentialRecord
	for _, e := range entries {
		rec, ok, err := s.readRecord(executionID, e.Name())
		if err != nil {
			return nil, false, err
		}
		if ok && (latest == nil || rec.CheckpointNumber > latest.CheckpointNumber) {
			r := rec
			latest = &r
		}
	}
	if latest == nil {
		return nil, false, nil
	}
	s.mu.Lock()
	if latest.CheckpointNumber > s.counter[executionID] {
		s.counter[executionID] = latest.CheckpointNumber
	}
	s.mu.Unlock()
	return latest.State, true, nil
}

func (s *SessionSequentialCheckpointer) List(_ context.Context, executionID string) ([]string, error) {
	entries, err := os.ReadDir(s.dir(executionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "node-") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	labels := make([]string, 0, len(names))
	for _, name := range names {
		rec, ok, err := s.readRecord(executionID, name)
		if err != nil {
			return nil, err
		}
		if ok {
			labels = append(labels, rec.Label)
		}
	}
	return labels, nil
}

func (s *SessionSequentialCheckpointer) Delete(_ context.Context, executionID string, label string) error {
	entries, err := os.ReadDir(s.dir(executionID))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		rec, ok, err := s.readRecord(executionID, e.Name())
		if err != nil {
			return err
		}
		if ok && rec.Label == label {
			return os.Remove(filepath.Join(s.dir(executionID), e.Name()))
		}
	}
	return nil
}
