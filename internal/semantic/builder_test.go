package semantic

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/matsen/simlearn/internal/dataset"
	"github.com/matsen/simlearn/internal/embedding"
	"github.com/matsen/simlearn/internal/storage"
)

// fakeProvider returns a fixed vector per ID and records the paths it saw.
type fakeProvider struct {
	vectors map[string][]float32
	paths   []string
	failOn  string
}

func (f *fakeProvider) Embed(ctx context.Context, in embedding.Input) (embedding.Embedding, error) {
	f.paths = append(f.paths, in.Path)
	if in.ID == f.failOn {
		return embedding.Embedding{}, fmt.Errorf("boom")
	}
	v, ok := f.vectors[in.ID]
	if !ok {
		return embedding.Embedding{}, embedding.ErrNotFound
	}
	return embedding.Embedding{Vector: v}, nil
}

func (f *fakeProvider) ModelName() string { return "fake" }
func (f *fakeProvider) Dimensions() int   { return 2 }

var builderItems = []dataset.Item{
	{ID: "a/1", Identity: "a", Path: "a/1.jpg", Hash: "h1"},
	{ID: "a/2", Identity: "a", Path: "a/2.jpg", Hash: "h2"},
	{ID: "b/1", Identity: "b", Path: "b/1.jpg", Hash: "h3"},
}

func TestBuilder_Build(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := storage.OpenDB(filepath.Join(tmpDir, "items.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.ReplaceItems(builderItems); err != nil {
		t.Fatal(err)
	}

	provider := &fakeProvider{vectors: map[string][]float32{
		"a/1": {1, 0},
		"b/1": {0, 1},
	}}
	b := NewBuilder(provider, db, "/data")

	var calls int
	b.SetProgressReporter(ProgressFunc(func(current, total int) {
		calls++
		if total != 3 {
			t.Errorf("progress total = %d, want 3", total)
		}
	}))

	idx, stats, err := b.Build(context.Background(), builderItems)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if stats.ItemsIndexed != 2 || stats.ItemsSkipped != 1 {
		t.Errorf("stats = %+v, want 2 indexed, 1 skipped", stats)
	}
	if idx.ItemCount != 2 || idx.SkippedCount != 1 || idx.ModelName != "fake" {
		t.Errorf("index = %d items, %d skipped, model %s", idx.ItemCount, idx.SkippedCount, idx.ModelName)
	}
	if calls != 3 {
		t.Errorf("progress called %d times, want 3", calls)
	}
	if provider.paths[0] != filepath.Join("/data", "a", "1.jpg") {
		t.Errorf("provider saw path %q", provider.paths[0])
	}

	n, err := db.CountEmbeddingMetadata()
	if err != nil || n != 2 {
		t.Errorf("CountEmbeddingMetadata() = %d, %v", n, err)
	}
	stale, err := db.ListStaleItemIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 1 || stale[0] != "a/2" {
		t.Errorf("ListStaleItemIDs() = %v, want [a/2]", stale)
	}
}

func TestBuilder_Update(t *testing.T) {
	provider := &fakeProvider{vectors: map[string][]float32{"a/1": {1, 0}, "a/2": {0.5, 0.5}}}
	b := NewBuilder(provider, nil, "/data")

	idx := NewSemanticIndex("fake", 2)
	idx.AddEmbedding("b/1", []float32{0, 1})

	stats, err := b.Update(context.Background(), idx, builderItems[:2])
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if stats.ItemsIndexed != 2 || idx.ItemCount != 3 {
		t.Errorf("Update() indexed %d, index has %d", stats.ItemsIndexed, idx.ItemCount)
	}

	other := NewSemanticIndex("different", 2)
	if _, err := b.Update(context.Background(), other, builderItems); err == nil {
		t.Error("Update() expected error for model mismatch")
	}
}

func TestBuilder_ProviderError(t *testing.T) {
	provider := &fakeProvider{vectors: map[string][]float32{"a/1": {1, 0}}, failOn: "a/2"}
	b := NewBuilder(provider, nil, "/data")

	if _, _, err := b.Build(context.Background(), builderItems); err == nil {
		t.Error("Build() expected provider error")
	}
}

func TestBuilder_Cancelled(t *testing.T) {
	provider := &fakeProvider{vectors: map[string][]float32{}}
	b := NewBuilder(provider, nil, "/data")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := b.Build(ctx, builderItems); !errors.Is(err, context.Canceled) {
		t.Errorf("Build() error = %v, want context.Canceled", err)
	}
	if len(provider.paths) != 0 {
		t.Error("provider should not be called after cancellation")
	}
}
