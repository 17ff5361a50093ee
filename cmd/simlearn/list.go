package main

import (
	"fmt"

	"github.com/matsen/simlearn/internal/dataset"
	"github.com/matsen/simlearn/internal/storage"
	"github.com/spf13/cobra"
)

var (
	listLimit      int
	listIdentity   string
	listIdentities bool
	listMinImages  int
)

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum results to return (0 = all)")
	listCmd.Flags().StringVar(&listIdentity, "identity", "", "Only list images of this identity")
	listCmd.Flags().BoolVar(&listIdentities, "identities", false, "List identities with their image counts")
	listCmd.Flags().IntVar(&listMinImages, "min-images", 1, "With --identities, omit identities with fewer images")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List dataset items or identities",
	Long: `List dataset items in manifest order, or identities by image count.

Examples:
  simlearn list --limit 20
  simlearn list --identity George_W_Bush
  simlearn list --identities --min-images 2`,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	db := mustOpenDatabase(root)
	defer db.Close()

	if listIdentities {
		return listIdentityCounts(db)
	}

	var items []dataset.Item
	var err error
	if listIdentity != "" {
		items, err = db.ListByIdentity(listIdentity)
		if err == nil && len(items) == 0 {
			exitWithError(ExitError, "identity %q not found", listIdentity)
		}
		if listLimit > 0 && len(items) > listLimit {
			items = items[:listLimit]
		}
	} else {
		items, err = db.ListAll(listLimit)
	}
	if err != nil {
		exitWithError(ExitError, "listing items: %v", err)
	}

	if humanOutput {
		if len(items) == 0 {
			fmt.Println("No items in workspace")
			return nil
		}
		total, _ := db.Count()
		if listIdentity == "" && listLimit > 0 && listLimit < total {
			fmt.Printf("%d items (showing first %d):\n\n", total, len(items))
		} else {
			fmt.Printf("%d items:\n\n", len(items))
		}
		for _, it := range items {
			fmt.Printf("  %-40s %s\n", it.ID, it.Path)
		}
	} else {
		if items == nil {
			items = []dataset.Item{}
		}
		outputJSON(items)
	}

	return nil
}

func listIdentityCounts(db *storage.DB) error {
	counts, err := db.IdentityCounts(listMinImages)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if listLimit > 0 && len(counts) > listLimit {
		counts = counts[:listLimit]
	}

	if humanOutput {
		if len(counts) == 0 {
			fmt.Println("No identities match")
			return nil
		}
		for _, c := range counts {
			fmt.Printf("  %5d  %s\n", c.Images, c.Identity)
		}
	} else {
		if counts == nil {
			counts = []storage.IdentityCount{}
		}
		outputJSON(counts)
	}
	return nil
}
