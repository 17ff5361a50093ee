package main

import (
	"fmt"
	"path/filepath"

	"github.com/matsen/simlearn/internal/config"
	"github.com/matsen/simlearn/internal/dataset"
	"github.com/matsen/simlearn/internal/semantic"
	"github.com/matsen/simlearn/internal/storage"
	"github.com/spf13/cobra"
)

var (
	scanNoHash    bool
	scanMinImages int
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&scanNoHash, "no-hash", false, "Skip content hashing (disables index staleness checks)")
	scanCmd.Flags().IntVar(&scanMinImages, "min-images", 0, "Override the configured minimum images per identity")
}

// ScanResult is the response for the scan command.
type ScanResult struct {
	Status      string `json:"status"`
	DatasetRoot string `json:"dataset_root"`
	dataset.ScanStats
	MultiImage    int `json:"multi_image_identities"`
	PositivePairs int `json:"positive_pairs"`
	StaleItems    int `json:"stale_items,omitempty"`
}

var scanCmd = &cobra.Command{
	Use:   "scan [dir]",
	Short: "Index the dataset into the workspace manifest",
	Long: `Walk the dataset root (one subdirectory per identity) and write every
image to .simlearn/items.jsonl and the SQLite cache.

If dir is given it is used instead of the configured dataset root, and
saved to the config when no root is configured yet.

Identities and files are visited in sorted order, so item order (and every
seeded sample drawn from it) is reproducible.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	cfg := mustLoadConfig(root)

	datasetRoot := cfg.ResolveDatasetRoot(root)
	if len(args) == 1 {
		abs, err := filepath.Abs(config.ExpandPath(args[0]))
		if err != nil {
			exitWithError(ExitConfigError, "resolving %s: %v", args[0], err)
		}
		datasetRoot = abs
		if cfg.DatasetRoot == "" {
			cfg.DatasetRoot = abs
			if err := cfg.Save(root); err != nil {
				exitWithError(ExitError, "saving config: %v", err)
			}
		}
	}
	if datasetRoot == "" {
		exitWithError(ExitConfigError, "no dataset root configured\n\nRun 'simlearn config dataset-root <dir>' or pass a directory to scan.")
	}

	minImages := cfg.MinImages
	if scanMinImages > 0 {
		minImages = scanMinImages
	}

	items, stats, err := dataset.Scan(datasetRoot, dataset.ScanOptions{
		Extensions: cfg.Extensions,
		MinImages:  minImages,
		SkipHash:   scanNoHash,
	})
	if err != nil {
		exitWithError(ExitDataError, "scanning %s: %v", datasetRoot, err)
	}

	idx, err := dataset.NewIndex(items)
	if err != nil {
		exitWithError(ExitDataError, "indexing dataset: %v", err)
	}

	if err := storage.WriteItems(config.ItemsPath(root), items); err != nil {
		exitWithError(ExitError, "writing manifest: %v", err)
	}

	db := mustOpenDatabase(root)
	defer db.Close()

	if err := db.ReplaceItems(items); err != nil {
		exitWithError(ExitError, "updating database: %v", err)
	}

	result := ScanResult{
		Status:        "scanned",
		DatasetRoot:   datasetRoot,
		ScanStats:     *stats,
		MultiImage:    idx.Stats().MultiImage,
		PositivePairs: idx.Stats().PositivePairs,
	}

	if semantic.Exists(root) {
		stale, err := db.ListStaleItemIDs()
		if err != nil {
			exitWithError(ExitError, "checking index staleness: %v", err)
		}
		result.StaleItems = len(stale)
	}

	if humanOutput {
		fmt.Printf("Scanned %s\n", datasetRoot)
		fmt.Printf("  Items: %d\n", result.Items)
		fmt.Printf("  Identities: %d (%d with 2+ images)\n", result.Identities, result.MultiImage)
		fmt.Printf("  Positive pairs: %d\n", result.PositivePairs)
		if result.DroppedIdentities > 0 {
			fmt.Printf("  Dropped identities (< %d images): %d\n", minImages, result.DroppedIdentities)
		}
		if result.SkippedFiles > 0 {
			fmt.Printf("  Skipped files: %d\n", result.SkippedFiles)
		}
		if result.StaleItems > 0 {
			fmt.Printf("\n%d items are missing from or stale in the embedding index.\nRun 'simlearn index build --stale-only' to update it.\n", result.StaleItems)
		}
	} else {
		outputJSON(result)
	}

	return nil
}
