package iterz

import "fmt"

// GraphNoder is implemented by datasets that can describe themselves to a
// GraphBuilder. Stage datasets expose exactly the data an external
// serializer needs to reconstruct them: the upstream node, the ordered
// captured values, the function identity and the execution-mode flag.
// Sources expose their parameters as attributes.
type GraphNoder interface {
	AsGraphNode(b *GraphBuilder) (int, error)
}

// GraphNode is one serialized pipeline stage. The wire format behind a
// GraphDef is the consumer's concern; this structure only carries the
// fields the core exposes.
type GraphNode struct {
	Attrs    map[Name]int64
	Op       string
	Function Name
	Captured []Value
	Inputs   []int
	ID       int
	Mode     ExecutionMode
}

// GraphDef is the in-memory description of a whole pipeline: its nodes in
// dependency order and the id of the output node.
type GraphDef struct {
	Nodes  []GraphNode
	Output int
}

// GraphBuilder accumulates graph nodes while walking a dataset tree.
// Datasets reached through more than one edge are added once and shared.
type GraphBuilder struct {
	nodes []GraphNode
	seen  map[Dataset]int
}

// NewGraphBuilder creates an empty builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{seen: make(map[Dataset]int)}
}

// AddInputDataset appends d's subtree to the graph and returns the id of
// its node, deduplicating datasets already added.
func (b *GraphBuilder) AddInputDataset(d Dataset) (int, error) {
	if id, ok := b.seen[d]; ok {
		return id, nil
	}
	noder, ok := d.(GraphNoder)
	if !ok {
		return 0, fmt.Errorf("iterz: dataset %s does not support graph serialization", d.DebugLabel())
	}
	id, err := noder.AsGraphNode(b)
	if err != nil {
		return 0, err
	}
	b.seen[d] = id
	return id, nil
}

// AddNode appends one node and returns its assigned id.
func (b *GraphBuilder) AddNode(n GraphNode) int {
	n.ID = len(b.nodes)
	b.nodes = append(b.nodes, n)
	return n.ID
}

// Build finalizes the graph with the given output node id.
func (b *GraphBuilder) Build(output int) GraphDef {
	return GraphDef{Nodes: b.nodes, Output: output}
}

// BuildGraph serializes the pipeline rooted at d.
func BuildGraph(d Dataset) (GraphDef, error) {
	b := NewGraphBuilder()
	output, err := b.AddInputDataset(d)
	if err != nil {
		return GraphDef{}, err
	}
	return b.Build(output), nil
}
