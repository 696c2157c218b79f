// Command graphkit runs the bundled planner/review example workflow
// and prints its streamed steps according to one or more requested
// projection modes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dshills/graphkit/graph"
	"github.com/dshills/graphkit/graph/checkpoint"
	"github.com/dshills/graphkit/graph/metrics"
	"github.com/dshills/graphkit/graph/runtime"
	"github.com/dshills/graphkit/graph/stream"
	"github.com/dshills/graphkit/graph/tool"
	"github.com/dshills/graphkit/internal/ids"

	plannerreview "github.com/dshills/graphkit/examples/planner_review"
)

func main() {
	modeFlag := flag.String("modes", "values", "comma-separated stream modes: values,updates,events,debug")
	checkpointDir := flag.String("checkpoint-dir", "", "directory for file checkpoints; memory checkpointer if empty")
	flag.Parse()

	modes := parseModes(*modeFlag)

	rt := runtime.New()
	plannerreview.RegisterRuntime(rt)
	rt.Metrics = metrics.NewRecorder(nil)
	if *checkpointDir != "" {
		rt.Checkpointer = checkpoint.NewFileCheckpointer(*checkpointDir)
	} else {
		rt.Checkpointer = checkpoint.NewMemoryCheckpointer()
	}

	sink := &tool.MockTool{
		ToolName:  "publish",
		Responses: []map[string]interface{}{{"status": "published"}},
	}

	g, err := plannerreview.Build(sink, graph.NewConfig(graph.WithAutoCheckpoint(true)))
	if err != nil {
		log.Fatalf("build graph: %v", err)
	}

	router := stream.NewRouter(modes...)
	execID := ids.NewExecutionID()

	steps, err := rt.Stream(context.Background(), g, execID, graph.State{}, nil)
	if err != nil {
		log.Fatalf("start stream: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	var status graph.Status
	for step := range steps {
		if step.NodeID == "" {
			status = step.Snapshot.Status
			continue
		}
		for _, projected := range router.Project(step) {
			_ = enc.Encode(projected)
		}
	}

	fmt.Fprintf(os.Stderr, "execution %s finished with status %s\n", execID, status)
	if status != graph.StatusCompleted {
		os.Exit(1)
	}
}

func parseModes(raw string) []stream.Mode {
	parts := strings.Split(raw, ",")
	out := make([]stream.Mode, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, stream.Mode(p))
	}
	return out
}
