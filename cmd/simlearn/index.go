package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/matsen/simlearn/internal/config"
	"github.com/matsen/simlearn/internal/dataset"
	"github.com/matsen/simlearn/internal/embedding"
	"github.com/matsen/simlearn/internal/semantic"
	"github.com/matsen/simlearn/internal/storage"
	"github.com/spf13/cobra"
)

var (
	noProgress     bool
	indexProvider  string
	indexFile      string
	indexPixelSize int
	indexStaleOnly bool
)

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexCheckCmd)

	indexBuildCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Suppress progress output")
	indexBuildCmd.Flags().StringVar(&indexProvider, "provider", "pixel", "Embedding source: pixel, http or file")
	indexBuildCmd.Flags().StringVar(&indexFile, "file", "", "Embeddings JSONL for --provider file ({\"id\":...,\"vector\":[...]} per line)")
	indexBuildCmd.Flags().IntVar(&indexPixelSize, "pixel-size", 0, "Side length for --provider pixel (default: config pixel_size)")
	indexBuildCmd.Flags().BoolVar(&indexStaleOnly, "stale-only", false, "Only embed items that are new or changed since the last build")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the embedding index",
	Long:  `Commands for building and checking the embedding index used by similar, recall and triplets --mine.`,
}

// IndexBuildResult is the response for index build command.
type IndexBuildResult struct {
	Status          string  `json:"status"`
	ItemsIndexed    int     `json:"items_indexed"`
	ItemsSkipped    int     `json:"items_skipped"`
	ItemsRemoved    int     `json:"items_removed,omitempty"`
	SkippedReason   string  `json:"skipped_reason"`
	DurationSeconds float64 `json:"duration_seconds"`
	Model           string  `json:"model"`
	Dimensions      int     `json:"dimensions"`
	IndexSizeBytes  int64   `json:"index_size_bytes"`
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build or update the embedding index",
	Long: `Build or update the embedding index from the dataset images.

Providers:
  pixel  Downsampled grayscale pixels, the untrained baseline (default)
  http   POST each image to an embedding service; configure embed_url,
         embed_model and embed_api_key in the global config or via
         SIMLEARN_EMBED_URL, SIMLEARN_EMBED_MODEL and SIMLEARN_EMBED_API_KEY
         (a .env file in the working directory is honoured)
  file   Read vectors exported from a trained model (--file); items
         without a vector are skipped`,
	RunE: runIndexBuild,
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := mustFindWorkspace()
	cfg := mustLoadConfig(root)

	datasetRoot := cfg.ResolveDatasetRoot(root)
	if datasetRoot == "" {
		exitWithError(ExitConfigError, "no dataset root configured\n\nRun 'simlearn config dataset-root <dir>'.")
	}

	provider := mustNewProvider(ctx, cfg)

	db := mustOpenDatabase(root)
	defer db.Close()

	items, err := db.ListAll(0)
	if err != nil {
		exitWithError(ExitError, "listing items: %v", err)
	}
	if len(items) == 0 {
		exitWithError(ExitDataError, "no items in the workspace\n\nRun 'simlearn scan' first.")
	}

	builder := semantic.NewBuilder(provider, db, datasetRoot)
	if !noProgress && humanOutput {
		builder.SetProgressReporter(semantic.ProgressFunc(printProgress))
		fmt.Fprintf(os.Stderr, "Building embedding index with %s...\n", provider.ModelName())
	}

	var (
		idx     *semantic.SemanticIndex
		stats   *semantic.BuildStats
		removed int
	)
	if indexStaleOnly && semantic.Exists(root) {
		idx = mustLoadSemanticIndex(root)
		removed = removeOrphans(idx, items)

		staleIDs, err := db.ListStaleItemIDs()
		if err != nil {
			exitWithError(ExitError, "listing stale items: %v", err)
		}
		stats, err = builder.Update(ctx, idx, selectItems(items, staleIDs))
		if err != nil {
			exitWithError(ExitError, "updating index: %v", err)
		}
		idx.SkippedCount = countMissing(idx, items)
	} else {
		idx, stats, err = builder.Build(ctx, items)
		if err != nil {
			exitWithError(ExitError, "building index: %v", err)
		}
	}

	if err := idx.Save(root); err != nil {
		exitWithError(ExitError, "saving index: %v", err)
	}

	indexSize, err := semantic.IndexSize(root)
	if err != nil {
		indexSize = 0 // Non-fatal
	}
	stats.IndexSizeBytes = indexSize

	if humanOutput && !noProgress {
		clearProgress()
	}

	if humanOutput {
		fmt.Printf("\nBuild complete:\n")
		fmt.Printf("  Items indexed: %d\n", stats.ItemsIndexed)
		fmt.Printf("  Items skipped: %d (no embedding)\n", stats.ItemsSkipped)
		if removed > 0 {
			fmt.Printf("  Items removed: %d (no longer in dataset)\n", removed)
		}
		fmt.Printf("  Time elapsed: %s\n", formatDuration(stats.Duration))
		fmt.Printf("  Index size: %s\n", formatBytes(stats.IndexSizeBytes))
		fmt.Printf("  Model: %s (%d dims)\n", idx.ModelName, idx.Dimensions)
	} else {
		outputJSON(IndexBuildResult{
			Status:          "complete",
			ItemsIndexed:    stats.ItemsIndexed,
			ItemsSkipped:    stats.ItemsSkipped,
			ItemsRemoved:    removed,
			SkippedReason:   stats.SkippedReason,
			DurationSeconds: stats.Duration.Seconds(),
			Model:           idx.ModelName,
			Dimensions:      idx.Dimensions,
			IndexSizeBytes:  stats.IndexSizeBytes,
		})
	}

	return nil
}

// mustNewProvider constructs the embedding provider selected by --provider.
func mustNewProvider(ctx context.Context, cfg *config.Config) embedding.Provider {
	switch indexProvider {
	case "pixel":
		size := cfg.PixelSize
		if indexPixelSize > 0 {
			size = indexPixelSize
		}
		return embedding.NewPixelProvider(size)

	case "file":
		if indexFile == "" {
			exitWithError(ExitError, "--provider file requires --file")
		}
		p, err := embedding.LoadFileProvider(config.ExpandPath(indexFile))
		if err != nil {
			exitWithError(ExitDataError, "%v", err)
		}
		return p

	case "http":
		// Load .env file if present (for SIMLEARN_EMBED_API_KEY)
		_ = godotenv.Load()

		settings := config.EmbedSettings()
		var opts []embedding.HTTPOption
		if settings.EmbedURL != "" {
			opts = append(opts, embedding.WithBaseURL(settings.EmbedURL))
		}
		if settings.EmbedModel != "" {
			opts = append(opts, embedding.WithModel(settings.EmbedModel))
		}
		if settings.EmbedDims > 0 {
			opts = append(opts, embedding.WithDimensions(settings.EmbedDims))
		}
		if settings.EmbedAPIKey != "" {
			opts = append(opts, embedding.WithAPIKey(settings.EmbedAPIKey))
		}
		if settings.EmbedRateLimit != 0 {
			opts = append(opts, embedding.WithRateLimit(settings.EmbedRateLimit))
		}
		p := embedding.NewHTTPProvider(opts...)
		mustValidateService(ctx, p)
		return p
	}

	exitWithError(ExitError, "unknown provider %q (valid: pixel, http, file)", indexProvider)
	return nil
}

// mustValidateService checks that the embedding service is up and serves the model.
func mustValidateService(ctx context.Context, p *embedding.HTTPProvider) {
	if err := p.IsAvailable(ctx); err != nil {
		exitWithError(ExitDataError, "%v\n\nSet embed_url in %s or SIMLEARN_EMBED_URL.", err, config.GlobalConfigPath())
	}
	hasModel, err := p.HasModel(ctx)
	if err != nil {
		exitWithError(ExitError, "checking model availability: %v", err)
	}
	if !hasModel {
		exitWithError(ExitModelNotFound, "embedding model %q is not served by the embedding service", p.ModelName())
	}
}

// selectItems returns the items whose IDs are listed, in item order.
func selectItems(items []dataset.Item, ids []string) []dataset.Item {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []dataset.Item
	for _, it := range items {
		if want[it.ID] {
			out = append(out, it)
		}
	}
	return out
}

// removeOrphans drops indexed items that are no longer in the dataset.
func removeOrphans(idx *semantic.SemanticIndex, items []dataset.Item) int {
	orphans := findOrphans(idx, items)
	for _, id := range orphans {
		idx.Remove(id)
	}
	return len(orphans)
}

// findOrphans lists indexed IDs that are not dataset items.
func findOrphans(idx *semantic.SemanticIndex, items []dataset.Item) []string {
	known := make(map[string]bool, len(items))
	for _, it := range items {
		known[it.ID] = true
	}
	var orphans []string
	for _, id := range idx.IDs() {
		if !known[id] {
			orphans = append(orphans, id)
		}
	}
	return orphans
}

// countMissing counts dataset items without an embedding.
func countMissing(idx *semantic.SemanticIndex, items []dataset.Item) int {
	n := 0
	for _, it := range items {
		if !idx.HasItem(it.ID) {
			n++
		}
	}
	return n
}

// IndexCheckResult is the response for index check command.
type IndexCheckResult struct {
	Status         string   `json:"status"`
	ItemsTotal     int      `json:"items_total"`
	ItemsIndexed   int      `json:"items_indexed"`
	ItemsMissing   int      `json:"items_missing"`
	ItemsChanged   int      `json:"items_changed"`
	ItemsOrphaned  int      `json:"items_orphaned"`
	MissingIDs     []string `json:"missing_ids,omitempty"`
	ChangedIDs     []string `json:"changed_ids,omitempty"`
	Model          string   `json:"model"`
	Dimensions     int      `json:"dimensions"`
	IndexCreated   string   `json:"index_created"`
	IndexSizeBytes int64    `json:"index_size_bytes"`
	Recommendation string   `json:"recommendation,omitempty"`
}

var indexCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check embedding index health",
	Long: `Check the embedding index against the dataset manifest.

An item is missing when it has no embedding, changed when its image content
hash differs from the one recorded at embedding time, and orphaned when it
is indexed but no longer in the dataset. Exits with status 6 when any of
these are found.`,
	RunE: runIndexCheck,
}

func runIndexCheck(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	idx := mustLoadSemanticIndex(root)

	db := mustOpenDatabase(root)
	defer db.Close()

	items, err := db.ListAll(0)
	if err != nil {
		exitWithError(ExitError, "listing items: %v", err)
	}

	staleIDs, err := db.ListStaleItemIDs()
	if err != nil {
		exitWithError(ExitError, "listing stale items: %v", err)
	}
	var missingIDs, changedIDs []string
	for _, id := range staleIDs {
		if idx.HasItem(id) {
			changedIDs = append(changedIDs, id)
		} else {
			missingIDs = append(missingIDs, id)
		}
	}
	orphans := findOrphans(idx, items)

	indexSize, _ := semantic.IndexSize(root)

	status := "healthy"
	var recommendation string
	exitCode := ExitSuccess
	if len(changedIDs) > 0 || len(orphans) > 0 || len(missingIDs) > idx.SkippedCount {
		status = "stale"
		recommendation = "Run 'simlearn index build --stale-only' to update the index"
		exitCode = ExitIndexStale
	}

	result := IndexCheckResult{
		Status:         status,
		ItemsTotal:     len(items),
		ItemsIndexed:   idx.ItemCount,
		ItemsMissing:   len(missingIDs),
		ItemsChanged:   len(changedIDs),
		ItemsOrphaned:  len(orphans),
		Model:          idx.ModelName,
		Dimensions:     idx.Dimensions,
		IndexCreated:   idx.CreatedAt.Format(time.RFC3339),
		IndexSizeBytes: indexSize,
		Recommendation: recommendation,
	}
	if len(missingIDs) <= MaxReportedIDs {
		result.MissingIDs = missingIDs
	}
	if len(changedIDs) <= MaxReportedIDs {
		result.ChangedIDs = changedIDs
	}

	if humanOutput {
		fmt.Printf("Embedding Index Status: %s\n\n", status)
		fmt.Printf("Items:\n")
		fmt.Printf("  In dataset: %d\n", len(items))
		fmt.Printf("  Indexed: %d\n", idx.ItemCount)
		fmt.Printf("  Missing: %d\n", len(missingIDs))
		if len(result.MissingIDs) > 0 {
			fmt.Printf("    %s\n", formatIDList(result.MissingIDs))
		}
		fmt.Printf("  Changed since indexing: %d\n", len(changedIDs))
		if len(result.ChangedIDs) > 0 {
			fmt.Printf("    %s\n", formatIDList(result.ChangedIDs))
		}
		fmt.Printf("  Orphaned: %d\n", len(orphans))
		fmt.Printf("\nIndex Info:\n")
		fmt.Printf("  Model: %s (%d dims)\n", idx.ModelName, idx.Dimensions)
		fmt.Printf("  Created: %s\n", idx.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Size: %s\n", formatBytes(indexSize))
		if recommendation != "" {
			fmt.Printf("\n%s\n", recommendation)
		}
	} else {
		outputJSON(result)
	}

	if exitCode != ExitSuccess {
		os.Exit(exitCode)
	}
	return nil
}

// metadataFor returns the stored embedding metadata for an item, or nil.
func metadataFor(db *storage.DB, id string) *storage.EmbeddingMetadata {
	meta, err := db.GetEmbeddingMetadata(id)
	if err != nil {
		return nil
	}
	return meta
}
