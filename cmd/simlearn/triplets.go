package main

import (
	"errors"
	"fmt"

	"github.com/matsen/simlearn/internal/dataset"
	"github.com/matsen/simlearn/internal/mining"
	"github.com/matsen/simlearn/internal/sampling"
	"github.com/matsen/simlearn/internal/semantic"
	"github.com/matsen/simlearn/internal/storage"
	"github.com/spf13/cobra"
)

var (
	tripletsMaxPerIdentity int
	tripletsMine           bool
	tripletsMargin         float32
	tripletsSeed           int64
	tripletsWorkers        int
	tripletsOut            string
)

func init() {
	rootCmd.AddCommand(tripletsCmd)

	tripletsCmd.Flags().IntVar(&tripletsMaxPerIdentity, "max-per-identity", 0, "Cap anchor/positive pairs per identity (0 = all combinations)")
	tripletsCmd.Flags().BoolVar(&tripletsMine, "mine", false, "Mine semi-hard negatives from the embedding index")
	tripletsCmd.Flags().Float32Var(&tripletsMargin, "margin", 0, "Mining margin (default: config margin)")
	tripletsCmd.Flags().Int64Var(&tripletsSeed, "seed", 0, "Sampling seed (default: config seed)")
	tripletsCmd.Flags().IntVar(&tripletsWorkers, "workers", 0, "Goroutines for the similarity matrix (0 = GOMAXPROCS)")
	tripletsCmd.Flags().StringVarP(&tripletsOut, "out", "o", "", "Write triplets as JSONL to this file instead of stdout")
}

// TripletsResult is the response for the triplets command.
type TripletsResult struct {
	Status         string                   `json:"status"`
	Seed           int64                    `json:"seed"`
	Total          int                      `json:"total"`
	Mined          bool                     `json:"mined"`
	Margin         float32                  `json:"margin,omitempty"`
	SemiHard       int                      `json:"semi_hard,omitempty"`
	Fallback       int                      `json:"fallback,omitempty"`
	Unindexed      int                      `json:"unindexed_items,omitempty"`
	Loss           float32                  `json:"loss,omitempty"`
	ActiveFraction float32                  `json:"active_fraction,omitempty"`
	Model          string                   `json:"model,omitempty"`
	Path           string                   `json:"path,omitempty"`
	Triplets       []sampling.TripletRecord `json:"triplets,omitempty"`
}

var tripletsCmd = &cobra.Command{
	Use:   "triplets",
	Short: "Sample (anchor, positive, negative) triplets",
	Long: `Sample triplets for triplet-loss training.

Every positive pair becomes an (anchor, positive) and gets one negative of a
different identity. Without --mine the negative is uniformly random.

With --mine the negative is semi-hard with respect to the current embedding
index: a candidate n is acceptable when S[a,n] + margin > S[a,p], where S is
cosine similarity. One acceptable candidate is drawn at random; if there is
none a random negative is used and counted as a fallback. Only items present
in the index take part. The mean triplet loss of the mined set is reported.

Examples:
  simlearn triplets --max-per-identity 5 -o triplets.jsonl
  simlearn triplets --mine --margin 0.2 -o hard.jsonl`,
	RunE: runTriplets,
}

func runTriplets(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	cfg := mustLoadConfig(root)

	db := mustOpenDatabase(root)
	defer db.Close()
	idx := mustLoadDataset(db)

	seed := resolveSeed(cmd, tripletsSeed, cfg)
	result := TripletsResult{Status: "sampled", Seed: seed}

	var triplets []sampling.Triplet
	if tripletsMine {
		margin := cfg.Margin
		if cmd.Flags().Changed("margin") {
			margin = tripletsMargin
		}
		if margin < 0 {
			exitWithError(ExitError, "invalid margin: %v (must be >= 0)", margin)
		}

		sem := mustLoadSemanticIndex(root)
		indexed := idx.Filter(func(it dataset.Item) bool { return sem.HasItem(it.ID) })
		result.Unindexed = idx.Len() - indexed.Len()
		if indexed.Len() == 0 {
			exitWithError(ExitConfigError, "no dataset item is in the embedding index\n\nRun 'simlearn index build'.")
		}
		idx = indexed

		mined, stats, sim := mineTriplets(idx, sem, seed, margin)
		triplets = mined
		result.Mined = true
		result.Margin = margin
		result.SemiHard = stats.Mined
		result.Fallback = stats.Fallback
		result.Loss = mining.TripletLoss(sim, triplets, margin)
		result.ActiveFraction = mining.ActiveFraction(sim, triplets, margin)
		result.Model = sem.ModelName
	} else {
		var err error
		triplets, err = sampling.New(idx, seed).RandomTriplets(tripletsMaxPerIdentity)
		if err != nil {
			mustHandleSamplingError(err)
		}
	}

	records := sampling.TripletRecords(idx, triplets)
	result.Total = len(records)

	if tripletsOut != "" {
		if err := storage.WriteJSONL(tripletsOut, records); err != nil {
			exitWithError(ExitError, "writing triplets: %v", err)
		}
		result.Path = tripletsOut
	} else if !humanOutput {
		result.Triplets = records
	}

	if humanOutput {
		fmt.Printf("%d triplets, seed %d\n", result.Total, seed)
		if result.Mined {
			fmt.Printf("Mined against %s with margin %.3g: %d semi-hard, %d fallback\n",
				result.Model, result.Margin, result.SemiHard, result.Fallback)
			fmt.Printf("Triplet loss %.4f, %.1f%% active\n", result.Loss, 100*result.ActiveFraction)
			if result.Unindexed > 0 {
				fmt.Printf("%d items without embeddings were left out\n", result.Unindexed)
			}
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
			fmt.Printf("  %s  %s  %s\n", r.Anchor, r.Positive, r.Negative)
		}
	} else {
		outputJSON(result)
	}

	return nil
}

// mineTriplets builds the similarity matrix over idx in item order and mines
// one semi-hard negative per positive pair.
func mineTriplets(idx *dataset.Index, sem *semantic.SemanticIndex, seed int64, margin float32) ([]sampling.Triplet, mining.Stats, *mining.Matrix) {
	ids := make([]string, idx.Len())
	for i, it := range idx.Items() {
		ids[i] = it.ID
	}
	vectors, err := sem.Vectors(ids)
	if err != nil {
		exitWithError(ExitError, "reading embeddings: %v", err)
	}

	sim, err := mining.SimilarityMatrix(vectors, tripletsWorkers)
	if err != nil {
		exitWithError(ExitError, "computing similarity matrix: %v", err)
	}

	sampler := sampling.New(idx, seed)
	pairs, err := sampler.AllPositivePairs(tripletsMaxPerIdentity)
	if err != nil {
		mustHandleSamplingError(err)
	}

	miner, err := mining.NewMiner(idx.Labels(), sim, margin, sampler.Rand())
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	triplets, stats, err := miner.Triplets(pairs)
	if err != nil {
		if errors.Is(err, mining.ErrNoNegative) {
			exitWithError(ExitDataError, "%v\n\nMining needs at least two indexed identities.", err)
		}
		exitWithError(ExitError, "mining: %v", err)
	}
	return triplets, stats, sim
}
