// Package main provides the simlearn CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/matsen/simlearn/internal/config"
	"github.com/matsen/simlearn/internal/dataset"
	"github.com/matsen/simlearn/internal/semantic"
	"github.com/matsen/simlearn/internal/storage"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		// SilenceErrors is set, so cobra errors (bad flags, missing args) are printed here
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "simlearn",
	Short: "Dataset, sampling and evaluation toolkit for metric learning",
	Long: `simlearn prepares identity-labelled image datasets for siamese and
triplet-loss training and evaluates the embeddings a model produces.

Core features:
  - Index an <root>/<identity>/<image> tree into a JSONL manifest
  - Sample positive/negative pairs and random triplets with a fixed seed
  - Mine semi-hard negatives from the current embeddings
  - Nearest-neighbour search and recall@k over an embedding index

The manifest is stored in git-versionable JSONL with an ephemeral SQLite
cache for queries. All commands output JSON by default.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.Version = Version
}

// getStartingDirectory returns the directory to start searching for a workspace.
// SIMLEARN_ROOT wins over the global workspace_path, which wins over the cwd.
func getStartingDirectory() (string, int) {
	if root := os.Getenv("SIMLEARN_ROOT"); root != "" {
		return root, 0
	}
	if root := config.GetWorkspacePath(); root != "" {
		return root, 0
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", outputError(ExitError, "getting current directory: %v", err)
	}
	return cwd, 0
}

// mustFindWorkspace finds and validates the workspace, exits on error.
// Returns the workspace root path.
func mustFindWorkspace() string {
	start, exitCode := getStartingDirectory()
	if exitCode != 0 {
		os.Exit(exitCode)
	}

	root, err := config.FindWorkspace(start)
	if err != nil {
		fmt.Fprintln(os.Stderr, config.HelpfulConfigMessage())
		os.Exit(ExitConfigError)
	}
	return root
}

// mustOpenDatabase opens the SQLite cache, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenDatabase(root string) *storage.DB {
	if err := os.MkdirAll(config.CachePath(root), 0755); err != nil {
		exitWithError(ExitError, "creating cache directory: %v", err)
	}
	db, err := storage.OpenDB(config.DBPath(root))
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return db
}

// mustLoadConfig loads configuration, exits on error.
func mustLoadConfig(root string) *config.Config {
	cfg, err := config.Load(root)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// mustLoadDataset reads every item from the query cache into a dataset index.
func mustLoadDataset(db *storage.DB) *dataset.Index {
	items, err := db.ListAll(0)
	if err != nil {
		exitWithError(ExitError, "listing items: %v", err)
	}
	idx, err := dataset.NewIndex(items)
	if err != nil {
		if errors.Is(err, dataset.ErrEmptyDataset) {
			exitWithError(ExitDataError, "no items in the workspace\n\nRun 'simlearn scan' to index the dataset, or 'simlearn rebuild' after a pull.")
		}
		exitWithError(ExitDataError, "loading dataset: %v", err)
	}
	return idx
}

// mustLoadSemanticIndex loads the embedding index, exits on error.
func mustLoadSemanticIndex(root string) *semantic.SemanticIndex {
	idx, err := semantic.Load(root)
	if err != nil {
		if err == semantic.ErrIndexNotFound {
			exitWithError(ExitConfigError, "Embedding index not found\n\nRun 'simlearn index build' to create the index.")
		}
		exitWithError(ExitError, "loading index: %v", err)
	}
	return idx
}

// mustParseMetric parses a metric flag, falling back to the configured metric.
func mustParseMetric(flag string, cfg *config.Config) semantic.Metric {
	if flag == "" {
		flag = cfg.Metric
	}
	m, err := semantic.ParseMetric(flag)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	return m
}
