package semantic

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/matsen/simlearn/internal/dataset"
	"github.com/matsen/simlearn/internal/embedding"
	"github.com/matsen/simlearn/internal/storage"
)

// ProgressReporter receives progress updates during index building.
type ProgressReporter interface {
	// OnProgress is called with the current progress.
	OnProgress(current, total int)
}

// ProgressFunc is a function adapter for ProgressReporter.
type ProgressFunc func(current, total int)

// OnProgress implements ProgressReporter.
func (f ProgressFunc) OnProgress(current, total int) {
	f(current, total)
}

// Builder constructs an embedding index from dataset images.
type Builder struct {
	provider    embedding.Provider
	db          *storage.DB
	datasetRoot string
	progress    ProgressReporter
}

// NewBuilder creates a new index builder. Item paths are resolved against
// datasetRoot. db may be nil, in which case no metadata is recorded.
func NewBuilder(provider embedding.Provider, db *storage.DB, datasetRoot string) *Builder {
	return &Builder{
		provider:    provider,
		db:          db,
		datasetRoot: datasetRoot,
	}
}

// SetProgressReporter sets the progress reporter for the builder.
func (b *Builder) SetProgressReporter(reporter ProgressReporter) {
	b.progress = reporter
}

// Build creates a fresh index over items.
func (b *Builder) Build(ctx context.Context, items []dataset.Item) (*SemanticIndex, *BuildStats, error) {
	startTime := time.Now()

	idx := NewSemanticIndex(b.provider.ModelName(), b.provider.Dimensions())

	if b.db != nil {
		if err := b.db.ClearEmbeddingMetadata(); err != nil {
			return nil, nil, fmt.Errorf("clearing embedding metadata: %w", err)
		}
	}

	stats, err := b.embedInto(ctx, idx, items)
	if err != nil {
		return nil, nil, err
	}

	idx.SkippedCount = stats.ItemsSkipped
	idx.BuildDurationMs = time.Since(startTime).Milliseconds()
	stats.Duration = time.Since(startTime)

	return idx, stats, nil
}

// Update re-embeds items into an existing index built with the same model.
func (b *Builder) Update(ctx context.Context, idx *SemanticIndex, items []dataset.Item) (*BuildStats, error) {
	if idx.ModelName != b.provider.ModelName() {
		return nil, fmt.Errorf("index was built with %q, provider is %q (run a full build)", idx.ModelName, b.provider.ModelName())
	}

	startTime := time.Now()
	stats, err := b.embedInto(ctx, idx, items)
	if err != nil {
		return nil, err
	}
	stats.Duration = time.Since(startTime)
	return stats, nil
}

func (b *Builder) embedInto(ctx context.Context, idx *SemanticIndex, items []dataset.Item) (*BuildStats, error) {
	stats := &BuildStats{SkippedReason: "no_embedding"}
	total := len(items)

	for i, item := range items {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if b.progress != nil {
			b.progress.OnProgress(i+1, total)
		}

		emb, err := b.provider.Embed(ctx, embedding.Input{
			ID:   item.ID,
			Path: filepath.Join(b.datasetRoot, filepath.FromSlash(item.Path)),
		})
		if errors.Is(err, embedding.ErrNotFound) {
			idx.Remove(item.ID)
			stats.ItemsSkipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("embedding item %s: %w", item.ID, err)
		}

		if err := idx.AddEmbedding(item.ID, emb.Vector); err != nil {
			return nil, fmt.Errorf("adding embedding for %s: %w", item.ID, err)
		}
		stats.ItemsIndexed++

		if b.db != nil {
			meta := storage.EmbeddingMetadata{
				ItemID:      item.ID,
				ModelName:   b.provider.ModelName(),
				IndexedAt:   time.Now().Unix(),
				ContentHash: item.Hash,
			}
			if err := b.db.SaveEmbeddingMetadata(meta); err != nil {
				return nil, fmt.Errorf("saving metadata for %s: %w", item.ID, err)
			}
		}
	}

	return stats, nil
}
