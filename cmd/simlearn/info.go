package main

import (
	"fmt"
	"time"

	"github.com/matsen/simlearn/internal/dataset"
	"github.com/matsen/simlearn/internal/semantic"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Summarise the workspace dataset and embedding index",
	RunE:  runInfo,
}

// IndexSummary describes the embedding index in info output.
type IndexSummary struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Items      int    `json:"items"`
	Skipped    int    `json:"skipped"`
	Created    string `json:"created"`
	SizeBytes  int64  `json:"size_bytes"`
}

// InfoResult is the response for the info command.
type InfoResult struct {
	Root        string        `json:"root"`
	DatasetRoot string        `json:"dataset_root"`
	Margin      float32       `json:"margin"`
	Seed        int64         `json:"seed"`
	Metric      string        `json:"metric"`
	Dataset     dataset.Stats `json:"dataset"`
	Index       *IndexSummary `json:"index,omitempty"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	cfg := mustLoadConfig(root)

	db := mustOpenDatabase(root)
	defer db.Close()

	result := InfoResult{
		Root:        root,
		DatasetRoot: cfg.ResolveDatasetRoot(root),
		Margin:      cfg.Margin,
		Seed:        cfg.Seed,
		Metric:      cfg.Metric,
	}

	items, err := db.ListAll(0)
	if err != nil {
		exitWithError(ExitError, "listing items: %v", err)
	}
	if len(items) > 0 {
		idx, err := dataset.NewIndex(items)
		if err != nil {
			exitWithError(ExitDataError, "loading dataset: %v", err)
		}
		result.Dataset = idx.Stats()
	}

	if semantic.Exists(root) {
		sem := mustLoadSemanticIndex(root)
		size, _ := semantic.IndexSize(root)
		result.Index = &IndexSummary{
			Model:      sem.ModelName,
			Dimensions: sem.Dimensions,
			Items:      sem.ItemCount,
			Skipped:    sem.SkippedCount,
			Created:    sem.CreatedAt.Format(time.RFC3339),
			SizeBytes:  size,
		}
	}

	if humanOutput {
		fmt.Printf("Workspace: %s\n", result.Root)
		fmt.Printf("Dataset:   %s\n\n", result.DatasetRoot)
		fmt.Printf("Items:          %d\n", result.Dataset.Items)
		fmt.Printf("Identities:     %d (%d with 2+ images)\n", result.Dataset.Identities, result.Dataset.MultiImage)
		fmt.Printf("Largest class:  %d images\n", result.Dataset.MaxPerIdent)
		fmt.Printf("Positive pairs: %d\n\n", result.Dataset.PositivePairs)
		fmt.Printf("Margin %.3g, seed %d, metric %s\n", result.Margin, result.Seed, result.Metric)
		if result.Index != nil {
			fmt.Printf("\nIndex: %s (%d dims), %d items, %s\n",
				result.Index.Model, result.Index.Dimensions, result.Index.Items, formatBytes(result.Index.SizeBytes))
		} else {
			fmt.Printf("\nNo embedding index. Run 'simlearn index build'.\n")
		}
	} else {
		outputJSON(result)
	}

	return nil
}
