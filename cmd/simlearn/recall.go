package main

import (
	"errors"
	"fmt"

	"github.com/matsen/simlearn/internal/semantic"
	"github.com/spf13/cobra"
)

var (
	recallKs      []int
	recallMetric  string
	recallWorkers int
)

func init() {
	rootCmd.AddCommand(recallCmd)

	recallCmd.Flags().IntSliceVarP(&recallKs, "k", "k", []int{1, 5, 10}, "Cutoffs to report (comma-separated)")
	recallCmd.Flags().StringVar(&recallMetric, "metric", "", "cosine or euclidean (default: config metric)")
	recallCmd.Flags().IntVar(&recallWorkers, "workers", 0, "Goroutines ranking queries (0 = GOMAXPROCS)")
}

// RecallResponse is the response for the recall command.
type RecallResponse struct {
	*semantic.Evaluation
	Model string `json:"model"`
}

var recallCmd = &cobra.Command{
	Use:   "recall",
	Short: "Evaluate recall@k of the embedding index",
	Long: `Evaluate how well the embedding index groups images by identity.

Every indexed item whose identity has another indexed item is a query. For
each query all other indexed items are ranked by the metric; the query is a
hit at k when an item of the same identity is among its k nearest
neighbours. Also reports the mean reciprocal rank of the first such item.

Examples:
  simlearn recall
  simlearn recall -k 1,10,100 --metric euclidean`,
	RunE: runRecall,
}

func runRecall(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	cfg := mustLoadConfig(root)
	metric := mustParseMetric(recallMetric, cfg)
	idx := mustLoadSemanticIndex(root)

	db := mustOpenDatabase(root)
	defer db.Close()

	items, err := db.ListAll(0)
	if err != nil {
		exitWithError(ExitError, "listing items: %v", err)
	}
	labels := make(map[string]string, len(items))
	for _, it := range items {
		labels[it.ID] = it.Identity
	}

	ev, err := semantic.Evaluate(idx, labels, recallKs, metric, recallWorkers)
	if err != nil {
		switch {
		case errors.Is(err, semantic.ErrInvalidK):
			exitWithError(ExitError, "%v", err)
		case errors.Is(err, semantic.ErrNoQueries):
			exitWithError(ExitDataError, "%v\n\nRecall needs identities with at least two indexed images.", err)
		default:
			exitWithError(ExitError, "evaluating: %v", err)
		}
	}

	if humanOutput {
		fmt.Printf("Recall (%s, %s): %d queries over %d items\n\n", metric, idx.ModelName, ev.Queries, ev.Candidates)
		for _, r := range ev.Recalls {
			fmt.Printf("  recall@%-4d %.4f  (%d/%d)\n", r.K, r.Value, r.Hits, r.Queries)
		}
		fmt.Printf("\n  MRR         %.4f\n", ev.MRR)
	} else {
		outputJSON(RecallResponse{Evaluation: ev, Model: idx.ModelName})
	}

	return nil
}
