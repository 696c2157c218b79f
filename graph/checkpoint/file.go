package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/dshills/graphkit/graph"
)

var sanitizeLabel = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func sanitize(label string) string {
	return sanitizeLabel.ReplaceAllString(label, "_")
}

// fileRecord is the on-disk shape of one JSON checkpoint file (§6
// "JSON variant").
type fileRecord struct {
	Label     string       `json:"label"`
	Timestamp time.Time    `json:"timestamp"`
	State     graph.State  `json:"state"`
}

// FileCheckpointer persists one directory per execution, one JSON file
// per label. List order is lexicographic, which for timestamp-embedded
// labels yields chronological order.
type FileCheckpointer struct {
	root string
}

func NewFileCheckpointer(root string) *FileCheckpointer {
	return &FileCheckpointer{root: root}
}

func (f *FileCheckpointer) dir(executionID string) string {
	return filepath.Join(f.root, sanitize(executionID))
}

func (f *FileCheckpointer) path(executionID, label string) string {
	return filepath.Join(f.dir(executionID), sanitize(label)+".json")
}

func (f *FileCheckpointer) Save(_ context.Context, executionID string, state graph.State, label string) error {
	if err := os.MkdirAll(f.dir(executionID), 0o755); err != nil {
		return err
	}
	rec := fileRecord{Label: label, Timestamp: time.Now().UTC(), State: state}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path(executionID, label), raw, 0o644)
}

func (f *FileCheckpointer) LoadByLabel(_ context.Context, executionID, label string) (graph.State, bool, error) {
	raw, err := os.ReadFile(f.path(executionID, label))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, err
	}
	return rec.State, true, nil
}

func (f *FileCheckpointer) Load(ctx context.Context, executionID string) (graph.State, bool, error) {
	labels, err := f.List(ctx, executionID)
	if err != nil || len(labels) == 0 {
		return nil, false, err
	}
	return f.LoadByLabel(ctx, executionID, labels[len(labels)-1])
}

func (f *FileCheckpointer) List(_ context.Context, executionID string) ([]string, error) {
	entries, err := os.ReadDir(f.dir(executionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var labels []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".json" {
			labels = append(labels, name[:len(name)-len(".json")])
		}
	}
	sort.Strings(labels)
	return labels, nil
}

func (f *FileCheckpointer) Delete(_ context.Context, executionID string, label string) error {
	err := os.Remove(f.path(executionID, label))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
