package iterz

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuildGraph_ExposesSerializationFields(t *testing.T) {
	source, _ := NewRangeDataset(0, 10, 2)
	def := MapDef("scale", func(_ context.Context, args Record) (Record, error) {
		return args, nil
	}).WithCaptured(Float64Value(2.5)).WithMode(IntraParallel)
	types, shapes := int64Schema(1)
	mapped, err := NewMapDataset(source, def, types, shapes)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer mapped.Close()

	graph, err := BuildGraph(mapped)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := GraphDef{
		Nodes: []GraphNode{
			{
				ID: 0,
				Op: "Range",
				Attrs: map[Name]int64{
					"start": 0,
					"stop":  10,
					"step":  2,
				},
			},
			{
				ID:       1,
				Op:       "Map",
				Inputs:   []int{0},
				Function: "scale",
				Captured: []Value{Float64Value(2.5)},
				Mode:     IntraParallel,
			},
		},
		Output: 1,
	}

	valueEq := cmp.Comparer(func(a, b Value) bool { return a.Equal(b) })
	if diff := cmp.Diff(want, graph, valueEq); diff != "" {
		t.Errorf("Graph mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildGraph_WalksWholePipeline(t *testing.T) {
	source, _ := NewRangeDataset(0, 100, 1)
	filtered, err := NewFilterDataset(source, evenDef())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer filtered.Close()
	taken, err := NewTakeDataset(filtered, 5)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	graph, err := BuildGraph(taken)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(graph.Nodes) != 3 {
		t.Fatalf("Expected 3 nodes, got %d", len(graph.Nodes))
	}
	ops := []string{graph.Nodes[0].Op, graph.Nodes[1].Op, graph.Nodes[2].Op}
	if ops[0] != "Range" || ops[1] != "Filter" || ops[2] != "Take" {
		t.Errorf("Expected [Range Filter Take] in dependency order, got %v", ops)
	}
	if graph.Nodes[2].Attrs["count"] != 5 {
		t.Errorf("Expected take count 5, got %d", graph.Nodes[2].Attrs["count"])
	}
	if graph.Output != 2 {
		t.Errorf("Expected output node 2, got %d", graph.Output)
	}
}

func TestBuildGraph_SharedUpstreamAddedOnce(t *testing.T) {
	source, _ := NewRangeDataset(0, 10, 1)
	left, err := NewTakeDataset(source, 3)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	b := NewGraphBuilder()
	firstID, err := b.AddInputDataset(source)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	leftID, err := b.AddInputDataset(left)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	graph := b.Build(leftID)
	if len(graph.Nodes) != 2 {
		t.Fatalf("Expected shared source added once, got %d nodes", len(graph.Nodes))
	}
	if graph.Nodes[1].Inputs[0] != firstID {
		t.Errorf("Expected take to reference source node %d, got %d", firstID, graph.Nodes[1].Inputs[0])
	}
}

type opaqueDataset struct{ Dataset }

func TestBuildGraph_UnsupportedDataset(t *testing.T) {
	source, _ := NewRangeDataset(0, 10, 1)
	if _, err := BuildGraph(opaqueDataset{Dataset: source}); err == nil {
		t.Fatal("Expected error for dataset without graph support")
	}
}
