package main

import (
	"context"
	"fmt"
	"time"

	"github.com/matsen/simlearn/internal/config"
	"github.com/matsen/simlearn/internal/embedding"
	"github.com/matsen/simlearn/internal/semantic"
	"github.com/spf13/cobra"
)

var (
	similarLimit  int
	similarMetric string
	similarImage  string
)

func init() {
	rootCmd.AddCommand(similarCmd)

	similarCmd.Flags().IntVarP(&similarLimit, "limit", "k", DefaultSimilarLimit, "Maximum number of neighbours")
	similarCmd.Flags().StringVar(&similarMetric, "metric", "", "cosine or euclidean (default: config metric)")
	similarCmd.Flags().StringVar(&similarImage, "image", "", "Query with an image file instead of an item (pixel indexes only)")
}

// SimilarSource is the query item in similar output.
type SimilarSource struct {
	ID        string `json:"id"`
	Identity  string `json:"identity,omitempty"`
	IndexedAt string `json:"indexed_at,omitempty"`
}

// SimilarResponse is the response for the similar command.
type SimilarResponse struct {
	Source  SimilarSource      `json:"source"`
	Similar []ItemSearchResult `json:"similar"`
	Total   int                `json:"total"`
	Metric  semantic.Metric    `json:"metric"`
	Model   string             `json:"model"`
}

var similarCmd = &cobra.Command{
	Use:   "similar [item-id]",
	Short: "Find the nearest neighbours of an item",
	Long: `Rank every indexed item by similarity to a query item and print the
closest ones. The query item itself is excluded.

With cosine, scores are similarities (higher is closer); with euclidean they
are distances (lower is closer). Ties are broken by item ID. Neighbours of
the same identity as the query are flagged.

Requires the embedding index to be built first with 'simlearn index build'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSimilar,
}

func runSimilar(cmd *cobra.Command, args []string) error {
	if (len(args) == 1) == (similarImage != "") {
		exitWithError(ExitError, "give either an item ID or --image")
	}

	root := mustFindWorkspace()
	cfg := mustLoadConfig(root)
	metric := mustParseMetric(similarMetric, cfg)
	idx := mustLoadSemanticIndex(root)

	db := mustOpenDatabase(root)
	defer db.Close()

	var (
		source  SimilarSource
		results []semantic.SearchResult
	)
	if similarImage != "" {
		source.ID = similarImage
		results = idx.MostSimilar(mustEmbedQueryImage(idx, cfg), similarLimit, metric)
	} else {
		itemID := args[0]
		if !idx.HasItem(itemID) {
			item, _ := db.GetByID(itemID)
			if item == nil {
				exitWithError(ExitError, "item %q not found in dataset", itemID)
			}
			exitWithError(ExitNotIndexed, "item %q is not in the embedding index\n\nRebuild the index with 'simlearn index build --stale-only'.", itemID)
		}

		item, err := db.GetByID(itemID)
		if err != nil {
			exitWithError(ExitError, "looking up item: %v", err)
		}
		source.ID = itemID
		if item != nil {
			source.Identity = item.Identity
		}
		if meta := metadataFor(db, itemID); meta != nil {
			source.IndexedAt = time.Unix(meta.IndexedAt, 0).UTC().Format(time.RFC3339)
		}

		results, err = idx.FindSimilar(itemID, similarLimit, metric)
		if err != nil {
			exitWithError(ExitError, "finding similar items: %v", err)
		}
	}

	similar := buildSearchResults(results, db, source.Identity)

	if humanOutput {
		fmt.Printf("Nearest to %s (%s, %s):\n\n", source.ID, metric, idx.ModelName)
		printSearchResultsHuman(similar, metric)
	} else {
		outputJSON(SimilarResponse{
			Source:  source,
			Similar: similar,
			Total:   len(similar),
			Metric:  metric,
			Model:   idx.ModelName,
		})
	}

	return nil
}

// mustEmbedQueryImage embeds an ad-hoc query image with the pixel baseline.
// Other models cannot embed new images locally.
func mustEmbedQueryImage(idx *semantic.SemanticIndex, cfg *config.Config) []float32 {
	p := embedding.NewPixelProvider(cfg.PixelSize)
	if p.ModelName() != idx.ModelName {
		exitWithError(ExitError, "--image needs a %s index, this one is %s", p.ModelName(), idx.ModelName)
	}
	emb, err := p.Embed(context.Background(), embedding.Input{ID: similarImage, Path: config.ExpandPath(similarImage)})
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	return emb.Vector
}
