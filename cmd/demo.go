package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zoobzio/iterz"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a dataset pipeline demonstration",
	Long: `Run a range -> map -> filter -> take pipeline and print each record as
it is pulled, followed by the per-stage metrics and the serialized
pipeline graph.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipelineDemo(cmd.Context())
	},
}

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[37m"
)

func buildPipeline() (iterz.Dataset, *iterz.MapDataset, func(), error) {
	source, err := iterz.NewRangeDataset(0, 100, 1)
	if err != nil {
		return nil, nil, nil, err
	}

	square := iterz.MapDef("square", func(_ context.Context, args iterz.Record) (iterz.Record, error) {
		v := args[0].Int64()
		return iterz.Record{iterz.Int64Value(v * v)}, nil
	})
	mapped, err := iterz.NewMapDataset(source, square,
		[]iterz.DType{iterz.Int64}, []iterz.Shape{iterz.ScalarShape()})
	if err != nil {
		return nil, nil, nil, err
	}

	even := iterz.PredicateDef("even", func(_ context.Context, args iterz.Record) (bool, error) {
		return args[0].Int64()%2 == 0, nil
	})
	filtered, err := iterz.NewFilterDataset(mapped, even)
	if err != nil {
		mapped.Close()
		return nil, nil, nil, err
	}

	taken, err := iterz.NewTakeDataset(filtered, 10)
	if err != nil {
		filtered.Close()
		mapped.Close()
		return nil, nil, nil, err
	}
	cleanup := func() {
		filtered.Close()
		mapped.Close()
	}
	return taken, mapped, cleanup, nil
}

func runPipelineDemo(ctx context.Context) error {
	fmt.Println(colorCyan + "=== range -> map(square) -> filter(even) -> take(10) ===" + colorReset)
	fmt.Println()

	pipeline, mapped, cleanup, err := buildPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	it := pipeline.MakeIterator("demo")
	if err := it.Initialize(ctx); err != nil {
		return err
	}
	defer it.Close()

	for {
		rec, end, err := it.GetNext(ctx)
		if err != nil {
			return err
		}
		if end {
			break
		}
		fmt.Printf("  %s->%s %d\n", colorGray, colorReset, rec[0].Int64())
	}

	fmt.Println()
	fmt.Println(colorCyan + "Map stage metrics:" + colorReset)
	metrics := mapped.Metrics()
	fmt.Printf("  records:       %.0f\n", metrics.Counter(iterz.MapRecordsTotal).Value())
	fmt.Printf("  executor runs: %.0f\n", metrics.Counter(iterz.MapExecutorRunsTotal).Value())
	fmt.Printf("  short-circuit: %.0f\n", metrics.Counter(iterz.MapShortCircuitTotal).Value())

	graph, err := iterz.BuildGraph(pipeline)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(colorCyan + "Pipeline graph:" + colorReset)
	for _, node := range graph.Nodes {
		label := node.Op
		if node.Function != "" {
			label = fmt.Sprintf("%s(%s)", node.Op, node.Function)
		}
		fmt.Printf("  [%d] %-16s inputs=%v attrs=%v\n", node.ID, label, node.Inputs, node.Attrs)
	}
	fmt.Println()
	fmt.Println(colorGreen + "Done." + colorReset)
	return nil
}
