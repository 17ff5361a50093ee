package main

import (
	"errors"
	"fmt"

	"github.com/matsen/simlearn/internal/config"
	"github.com/matsen/simlearn/internal/sampling"
	"github.com/matsen/simlearn/internal/storage"
	"github.com/spf13/cobra"
)

var (
	pairsMaxPerIdentity int
	pairsBalanced       bool
	pairsNegatives      int
	pairsBatchSize      int
	pairsSeed           int64
	pairsOut            string
)

func init() {
	rootCmd.AddCommand(pairsCmd)

	pairsCmd.Flags().IntVar(&pairsMaxPerIdentity, "max-per-identity", 0, "Cap positive pairs per identity (0 = all combinations)")
	pairsCmd.Flags().BoolVar(&pairsBalanced, "balanced", false, "Add one negative per positive and shuffle (siamese training set)")
	pairsCmd.Flags().IntVar(&pairsNegatives, "negatives", 0, "Number of negative pairs to append (ignored with --balanced)")
	pairsCmd.Flags().IntVar(&pairsBatchSize, "batch-size", 0, "Report the number of batches of this size")
	pairsCmd.Flags().Int64Var(&pairsSeed, "seed", 0, "Sampling seed (default: config seed)")
	pairsCmd.Flags().StringVarP(&pairsOut, "out", "o", "", "Write pairs as JSONL to this file instead of stdout")
}

// PairsResult is the response for the pairs command.
type PairsResult struct {
	Status    string                `json:"status"`
	Seed      int64                 `json:"seed"`
	Total     int                   `json:"total"`
	Positives int                   `json:"positives"`
	Negatives int                   `json:"negatives"`
	BatchSize int                   `json:"batch_size,omitempty"`
	Batches   int                   `json:"batches,omitempty"`
	Path      string                `json:"path,omitempty"`
	Pairs     []sampling.PairRecord `json:"pairs,omitempty"`
}

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "Sample positive and negative image pairs",
	Long: `Sample image pairs for siamese training.

Positive pairs are all unordered combinations of an identity's images,
shuffled and optionally capped per identity. Negative pairs join images of
two different identities. Pairs are labelled 1 (same) or 0 (different).

The same manifest and seed always produce the same pairs.

Examples:
  simlearn pairs --max-per-identity 10 -o pairs.jsonl
  simlearn pairs --balanced --seed 7
  simlearn pairs --negatives 1000 --batch-size 64`,
	RunE: runPairs,
}

func runPairs(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	cfg := mustLoadConfig(root)

	db := mustOpenDatabase(root)
	defer db.Close()
	idx := mustLoadDataset(db)

	seed := resolveSeed(cmd, pairsSeed, cfg)
	sampler := sampling.New(idx, seed)

	var pairs []sampling.Pair
	var err error
	if pairsBalanced {
		pairs, err = sampler.BalancedPairs(pairsMaxPerIdentity)
	} else {
		pairs, err = sampler.AllPositivePairs(pairsMaxPerIdentity)
		if err == nil && pairsNegatives > 0 {
			var negs []sampling.Pair
			negs, err = sampler.NegativePairs(pairsNegatives)
			pairs = append(pairs, negs...)
		}
	}
	if err != nil {
		mustHandleSamplingError(err)
	}

	records := sampling.PairRecords(idx, pairs)
	result := PairsResult{Status: "sampled", Seed: seed, Total: len(records)}
	for _, p := range pairs {
		if p.Label == sampling.LabelPositive {
			result.Positives++
		} else {
			result.Negatives++
		}
	}
	if pairsBatchSize > 0 {
		result.BatchSize = pairsBatchSize
		result.Batches = len(sampling.Batches(records, pairsBatchSize))
	}

	if pairsOut != "" {
		if err := storage.WriteJSONL(pairsOut, records); err != nil {
			exitWithError(ExitError, "writing pairs: %v", err)
		}
		result.Path = pairsOut
	} else if !humanOutput {
		result.Pairs = records
	}

	if humanOutput {
		fmt.Printf("%d pairs (%d positive, %d negative), seed %d\n", result.Total, result.Positives, result.Negatives, seed)
		if result.Batches > 0 {
			fmt.Printf("%d batches of up to %d\n", result.Batches, result.BatchSize)
		}
		if result.Path != "" {
			fmt.Printf("Wrote %s\n", result.Path)
			return nil
		}
		fmt.Println()
		for i, r := range records {
			if i == HumanPreviewLimit {
				fmt.Printf("  ... %d more (use -o to write all)\n", len(records)-i)
				break
			}
			fmt.Printf("  %d  %s  %s\n", r.Label, r.A, r.B)
		}
	} else {
		outputJSON(result)
	}

	return nil
}

// resolveSeed returns the --seed flag if set, otherwise the configured seed.
func resolveSeed(cmd *cobra.Command, flag int64, cfg *config.Config) int64 {
	if cmd.Flags().Changed("seed") {
		return flag
	}
	return cfg.Seed
}

// mustHandleSamplingError maps sampler errors to exit codes and exits.
func mustHandleSamplingError(err error) {
	switch {
	case errors.Is(err, sampling.ErrNoPositives):
		exitWithError(ExitDataError, "%v\n\nPairs need identities with at least two images.", err)
	case errors.Is(err, sampling.ErrNotEnoughIdentities):
		exitWithError(ExitDataError, "%v", err)
	default:
		exitWithError(ExitError, "sampling: %v", err)
	}
}
