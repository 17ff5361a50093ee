package main

import (
	"fmt"

	"github.com/matsen/simlearn/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the query cache from the manifest",
	Long: `Rebuild the SQLite query cache from .simlearn/items.jsonl.

Use this after pulling changes from git or if the cache becomes corrupted.
Embedding metadata is kept, so 'index check' still detects stale items.`,
	RunE: runRebuild,
}

// RebuildResult is the response for the rebuild command.
type RebuildResult struct {
	Status string `json:"status"`
	Items  int    `json:"items"`
}

func runRebuild(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()

	db := mustOpenDatabase(root)
	defer db.Close()

	count, err := db.RebuildFromJSONL(config.ItemsPath(root))
	if err != nil {
		exitWithError(ExitDataError, "rebuilding database: %v", err)
	}

	if humanOutput {
		fmt.Printf("Rebuilt query cache with %d items\n", count)
	} else {
		outputJSON(RebuildResult{
			Status: "rebuilt",
			Items:  count,
		})
	}

	return nil
}
