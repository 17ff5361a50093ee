package main

import (
	"reflect"
	"testing"
	"time"

	"github.com/matsen/simlearn/internal/dataset"
	"github.com/matsen/simlearn/internal/semantic"
)

func indexFixture() (*semantic.SemanticIndex, []dataset.Item) {
	items := []dataset.Item{
		{ID: "a/1", Identity: "a"},
		{ID: "a/2", Identity: "a"},
		{ID: "b/1", Identity: "b"},
	}
	idx := semantic.NewSemanticIndex("m", 1)
	idx.AddEmbedding("a/1", []float32{1})
	idx.AddEmbedding("gone/1", []float32{2})
	return idx, items
}

func TestSelectItems(t *testing.T) {
	_, items := indexFixture()
	got := selectItems(items, []string{"b/1", "a/1", "zzz"})
	if len(got) != 2 || got[0].ID != "a/1" || got[1].ID != "b/1" {
		t.Errorf("selectItems() = %v, want a/1, b/1 in item order", got)
	}
	if got := selectItems(items, nil); got != nil {
		t.Errorf("selectItems(nil) = %v", got)
	}
}

func TestFindAndRemoveOrphans(t *testing.T) {
	idx, items := indexFixture()

	if got := findOrphans(idx, items); !reflect.DeepEqual(got, []string{"gone/1"}) {
		t.Errorf("findOrphans() = %v", got)
	}
	if n := removeOrphans(idx, items); n != 1 {
		t.Errorf("removeOrphans() = %d, want 1", n)
	}
	if idx.HasItem("gone/1") || idx.ItemCount != 1 {
		t.Errorf("orphan still indexed, ItemCount = %d", idx.ItemCount)
	}
}

func TestCountMissing(t *testing.T) {
	idx, items := indexFixture()
	if n := countMissing(idx, items); n != 2 {
		t.Errorf("countMissing() = %d, want 2", n)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatBytes(512); got != "512 B" {
		t.Errorf("formatBytes(512) = %q", got)
	}
	if got := formatBytes(1536); got != "1.5 KB" {
		t.Errorf("formatBytes(1536) = %q", got)
	}
	if got := formatDuration(1500 * time.Millisecond); got != "1.5s" {
		t.Errorf("formatDuration(1.5s) = %q", got)
	}
	if got := formatDuration(90 * time.Second); got != "1m 30s" {
		t.Errorf("formatDuration(90s) = %q", got)
	}
	if got := formatIDList([]string{"a/1", "b/2"}); got != "a/1, b/2" {
		t.Errorf("formatIDList() = %q", got)
	}
}
