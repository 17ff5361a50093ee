package main

import (
	"os"
	"path/filepath"

	"github.com/matsen/simlearn/internal/config"
	"github.com/matsen/simlearn/internal/storage"
	"github.com/spf13/cobra"
)

var (
	initDataset string
	initMargin  float32
	initSeed    int64
	initMetric  string
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initDataset, "dataset", "", "Dataset root containing one directory per identity")
	initCmd.Flags().Float32Var(&initMargin, "margin", config.DefaultMargin, "Semi-hard mining margin")
	initCmd.Flags().Int64Var(&initSeed, "seed", config.DefaultSeed, "Seed for pair and triplet sampling")
	initCmd.Flags().StringVar(&initMetric, "metric", config.DefaultMetric, "Retrieval metric (cosine, euclidean)")
}

// InitResult is the response for the init command.
type InitResult struct {
	Status      string `json:"status"`
	Path        string `json:"path"`
	DatasetRoot string `json:"dataset_root,omitempty"`
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new simlearn workspace",
	Long: `Initialize a new simlearn workspace in the current directory
(or $SIMLEARN_ROOT).

Creates:
  .simlearn/
  ├── items.jsonl     # Empty manifest
  ├── config.json     # Default config
  └── cache/          # SQLite cache and embedding index (gitignored)`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root := os.Getenv("SIMLEARN_ROOT")
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			exitWithError(ExitError, "getting current directory: %v", err)
		}
		root = cwd
	}

	if config.IsWorkspace(root) {
		exitWithError(ExitError, "directory already contains a simlearn workspace")
	}

	cfg := config.Default()
	cfg.Margin = initMargin
	cfg.Seed = initSeed
	cfg.Metric = initMetric

	if err := config.ValidateMargin(cfg.Margin); err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if err := config.ValidateMetric(cfg.Metric); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if initDataset != "" {
		if err := config.ValidateDatasetRoot(initDataset); err != nil {
			exitWithError(ExitConfigError, "%v", err)
		}
		abs, err := filepath.Abs(config.ExpandPath(initDataset))
		if err != nil {
			exitWithError(ExitConfigError, "resolving dataset root: %v", err)
		}
		cfg.DatasetRoot = abs
	}

	if err := config.Init(root, cfg); err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if err := storage.WriteItems(config.ItemsPath(root), nil); err != nil {
		exitWithError(ExitError, "creating items.jsonl: %v", err)
	}

	if humanOutput {
		outputHuman("Initialized simlearn workspace in %s\n", root)
		if cfg.DatasetRoot == "" {
			outputHuman("Set the dataset with 'simlearn config dataset-root <dir>' then run 'simlearn scan'.\n")
		}
	} else {
		outputJSON(InitResult{
			Status:      "initialized",
			Path:        root,
			DatasetRoot: cfg.DatasetRoot,
		})
	}

	return nil
}
