package storage

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matsen/simlearn/internal/dataset"
)

// setupTestDB creates a test database loaded from a JSONL manifest.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	jsonlPath := filepath.Join(tmpDir, "items.jsonl")

	items := []dataset.Item{
		{ID: "bob/1", Identity: "bob", Path: "bob/1.jpg", Hash: "h-b1", Bytes: 100},
		{ID: "alice/1", Identity: "alice", Path: "alice/1.jpg", Hash: "h-a1", Bytes: 200},
		{ID: "bob/2", Identity: "bob", Path: "bob/2.jpg", Hash: "h-b2", Bytes: 300},
		{ID: "carol/1", Identity: "carol", Path: "carol/1.jpg", Hash: "h-c1"},
		{ID: "bob/3", Identity: "bob", Path: "bob/3.jpg", Hash: "h-b3"},
		{ID: "alice/2", Identity: "alice", Path: "alice/2.jpg", Hash: "h-a2"},
	}
	if err := WriteItems(jsonlPath, items); err != nil {
		t.Fatalf("Failed to write test JSONL: %v", err)
	}

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	n, err := db.RebuildFromJSONL(jsonlPath)
	if err != nil {
		t.Fatalf("Failed to rebuild DB: %v", err)
	}
	if n != len(items) {
		t.Fatalf("RebuildFromJSONL() = %d, want %d", n, len(items))
	}
	return db
}

func TestGetByID(t *testing.T) {
	db := setupTestDB(t)

	it, err := db.GetByID("alice/1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if it == nil || it.Identity != "alice" || it.Bytes != 200 {
		t.Errorf("GetByID() = %+v", it)
	}

	missing, err := db.GetByID("nobody/1")
	if err != nil {
		t.Fatalf("GetByID(missing) error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetByID(missing) = %+v, want nil", missing)
	}
}

func TestListAll_PreservesManifestOrder(t *testing.T) {
	db := setupTestDB(t)

	items, err := db.ListAll(0)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	want := []string{"bob/1", "alice/1", "bob/2", "carol/1", "bob/3", "alice/2"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ListAll() = %v, want %v", ids, want)
	}

	limited, err := db.ListAll(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("ListAll(2) returned %d", len(limited))
	}
}

func TestListByIdentity(t *testing.T) {
	db := setupTestDB(t)

	items, err := db.ListByIdentity("bob")
	if err != nil {
		t.Fatalf("ListByIdentity() error = %v", err)
	}
	if len(items) != 3 || items[0].ID != "bob/1" || items[2].ID != "bob/3" {
		t.Errorf("ListByIdentity(bob) = %+v", items)
	}
}

func TestIdentityCounts(t *testing.T) {
	db := setupTestDB(t)

	counts, err := db.IdentityCounts(2)
	if err != nil {
		t.Fatalf("IdentityCounts() error = %v", err)
	}
	want := []IdentityCount{{"bob", 3}, {"alice", 2}}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("IdentityCounts(2) = %v, want %v", counts, want)
	}

	n, err := db.Count()
	if err != nil || n != 6 {
		t.Errorf("Count() = %d, %v", n, err)
	}
}

func TestReplaceItems_Clears(t *testing.T) {
	db := setupTestDB(t)

	if err := db.ReplaceItems([]dataset.Item{{ID: "z/1", Identity: "z", Path: "z/1.jpg"}}); err != nil {
		t.Fatalf("ReplaceItems() error = %v", err)
	}
	n, err := db.Count()
	if err != nil || n != 1 {
		t.Errorf("Count() after replace = %d, %v", n, err)
	}
}

func TestEmbeddingMetadata(t *testing.T) {
	db := setupTestDB(t)

	meta := EmbeddingMetadata{ItemID: "bob/1", ModelName: "pixels-32", IndexedAt: 1700000000, ContentHash: "h-b1"}
	if err := db.SaveEmbeddingMetadata(meta); err != nil {
		t.Fatalf("SaveEmbeddingMetadata() error = %v", err)
	}

	got, err := db.GetEmbeddingMetadata("bob/1")
	if err != nil {
		t.Fatalf("GetEmbeddingMetadata() error = %v", err)
	}
	if got == nil || *got != meta {
		t.Errorf("GetEmbeddingMetadata() = %+v, want %+v", got, meta)
	}

	none, err := db.GetEmbeddingMetadata("alice/1")
	if err != nil || none != nil {
		t.Errorf("GetEmbeddingMetadata(unindexed) = %+v, %v", none, err)
	}

	n, err := db.CountEmbeddingMetadata()
	if err != nil || n != 1 {
		t.Errorf("CountEmbeddingMetadata() = %d, %v", n, err)
	}

	if err := db.ClearEmbeddingMetadata(); err != nil {
		t.Fatal(err)
	}
	n, _ = db.CountEmbeddingMetadata()
	if n != 0 {
		t.Errorf("CountEmbeddingMetadata() after clear = %d", n)
	}
}

func TestListStaleItemIDs(t *testing.T) {
	db := setupTestDB(t)

	fresh := []EmbeddingMetadata{
		{ItemID: "bob/1", ModelName: "m", ContentHash: "h-b1"},
		{ItemID: "alice/1", ModelName: "m", ContentHash: "changed"},
		{ItemID: "bob/2", ModelName: "m", ContentHash: "h-b2"},
		{ItemID: "carol/1", ModelName: "m", ContentHash: "h-c1"},
		{ItemID: "bob/3", ModelName: "m", ContentHash: "h-b3"},
	}
	for _, m := range fresh {
		if err := db.SaveEmbeddingMetadata(m); err != nil {
			t.Fatal(err)
		}
	}

	stale, err := db.ListStaleItemIDs()
	if err != nil {
		t.Fatalf("ListStaleItemIDs() error = %v", err)
	}
	want := []string{"alice/1", "alice/2"}
	if !reflect.DeepEqual(stale, want) {
		t.Errorf("ListStaleItemIDs() = %v, want %v", stale, want)
	}
}
