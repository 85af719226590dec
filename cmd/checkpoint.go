package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zoobzio/iterz"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Demonstrate mid-stream checkpointing",
	Long: `Pull half of a pipeline's records, save the iterator state to an
in-memory checkpoint, then rebuild the pipeline from scratch and restore
it to resume exactly where the first iterator stopped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheckpointDemo(cmd.Context())
	},
}

func runCheckpointDemo(ctx context.Context) error {
	fmt.Println(colorCyan + "=== checkpoint and resume ===" + colorReset)
	fmt.Println()

	pipeline, _, cleanup, err := buildPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	it := pipeline.MakeIterator("pipeline")
	if err := it.Initialize(ctx); err != nil {
		return err
	}
	defer it.Close()

	fmt.Println("First run, 5 records:")
	for i := 0; i < 5; i++ {
		rec, end, err := it.GetNext(ctx)
		if err != nil {
			return err
		}
		if end {
			break
		}
		fmt.Printf("  %d\n", rec[0].Int64())
	}

	ckpt := iterz.NewMemoryCheckpoint()
	if err := it.Save(ckpt); err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(colorCyan + "Saved state:" + colorReset)
	for _, key := range ckpt.Keys() {
		fmt.Printf("  %s\n", key)
	}

	// Rebuild from scratch, as a fresh process would.
	resumed, _, resumedCleanup, err := buildPipeline()
	if err != nil {
		return err
	}
	defer resumedCleanup()

	it2 := resumed.MakeIterator("pipeline")
	if err := it2.Initialize(ctx); err != nil {
		return err
	}
	defer it2.Close()
	if err := it2.Restore(ctx, ckpt); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Resumed run, remaining records:")
	for {
		rec, end, err := it2.GetNext(ctx)
		if err != nil {
			return err
		}
		if end {
			break
		}
		fmt.Printf("  %d\n", rec[0].Int64())
	}

	fmt.Println()
	fmt.Println(colorGreen + "Done." + colorReset)
	return nil
}
