package storage

import (
	"database/sql"
	"fmt"

	"github.com/matsen/simlearn/internal/dataset"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
// The database is a disposable query cache rebuilt from items.jsonl.
type DB struct {
	db *sql.DB
}

const selectItemFields = `id, identity, path, hash, bytes`

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS items (
			seq INTEGER NOT NULL,
			id TEXT PRIMARY KEY,
			identity TEXT NOT NULL,
			path TEXT NOT NULL,
			hash TEXT,
			bytes INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_items_identity ON items(identity);

		-- Embedding metadata for index staleness detection
		CREATE TABLE IF NOT EXISTS embedding_metadata (
			item_id TEXT PRIMARY KEY,
			model_name TEXT NOT NULL,
			indexed_at INTEGER NOT NULL,
			content_hash TEXT NOT NULL
		);
	`

	_, err := db.Exec(schema)
	return err
}

// RebuildFromJSONL clears the items table and reloads it from a manifest.
// Manifest order is preserved in the seq column.
func (d *DB) RebuildFromJSONL(jsonlPath string) (int, error) {
	items, err := ReadItems(jsonlPath)
	if err != nil {
		return 0, fmt.Errorf("reading JSONL: %w", err)
	}
	return len(items), d.ReplaceItems(items)
}

// ReplaceItems swaps the items table for the given items in one transaction.
func (d *DB) ReplaceItems(items []dataset.Item) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM items"); err != nil {
		return fmt.Errorf("clearing items table: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO items (seq, ` + selectItemFields + `) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing items insert: %w", err)
	}
	defer stmt.Close()

	for i, it := range items {
		if _, err := stmt.Exec(i, it.ID, it.Identity, it.Path, it.Hash, it.Bytes); err != nil {
			return fmt.Errorf("inserting item %s: %w", it.ID, err)
		}
	}

	return tx.Commit()
}

// GetByID retrieves an item by its ID. Returns nil if not found.
func (d *DB) GetByID(id string) (*dataset.Item, error) {
	row := d.db.QueryRow(`SELECT `+selectItemFields+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// ListAll returns all items in manifest order, optionally limited.
func (d *DB) ListAll(limit int) ([]dataset.Item, error) {
	query := `SELECT ` + selectItemFields + ` FROM items ORDER BY seq`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = []interface{}{limit}
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ListByIdentity returns the items of one identity in manifest order.
func (d *DB) ListByIdentity(identity string) ([]dataset.Item, error) {
	rows, err := d.db.Query(`SELECT `+selectItemFields+` FROM items WHERE identity = ? ORDER BY seq`, identity)
	if err != nil {
		return nil, fmt.Errorf("listing identity %s: %w", identity, err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// IdentityCount is the number of images of one identity.
type IdentityCount struct {
	Identity string `json:"identity"`
	Images   int    `json:"images"`
}

// IdentityCounts returns image counts per identity, largest first.
// Identities with fewer than minImages images are omitted.
func (d *DB) IdentityCounts(minImages int) ([]IdentityCount, error) {
	rows, err := d.db.Query(`
		SELECT identity, COUNT(*) AS n
		FROM items
		GROUP BY identity
		HAVING n >= ?
		ORDER BY n DESC, identity
	`, minImages)
	if err != nil {
		return nil, fmt.Errorf("counting identities: %w", err)
	}
	defer rows.Close()

	var out []IdentityCount
	for rows.Next() {
		var c IdentityCount
		if err := rows.Scan(&c.Identity, &c.Images); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the total number of items.
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(s scanner) (dataset.Item, error) {
	var it dataset.Item
	var hash sql.NullString
	var size sql.NullInt64
	if err := s.Scan(&it.ID, &it.Identity, &it.Path, &hash, &size); err != nil {
		return dataset.Item{}, err
	}
	it.Hash = hash.String
	it.Bytes = size.Int64
	return it, nil
}

func scanItems(rows *sql.Rows) ([]dataset.Item, error) {
	var items []dataset.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// EmbeddingMetadata records when and from what content an item was embedded.
type EmbeddingMetadata struct {
	ItemID      string
	ModelName   string
	IndexedAt   int64  // Unix timestamp
	ContentHash string // blake2b of the image file at embed time
}

// SaveEmbeddingMetadata saves or updates embedding metadata for an item.
func (d *DB) SaveEmbeddingMetadata(meta EmbeddingMetadata) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO embedding_metadata (item_id, model_name, indexed_at, content_hash)
		VALUES (?, ?, ?, ?)
	`, meta.ItemID, meta.ModelName, meta.IndexedAt, meta.ContentHash)
	return err
}

// GetEmbeddingMetadata retrieves embedding metadata for an item. Returns nil if not found.
func (d *DB) GetEmbeddingMetadata(itemID string) (*EmbeddingMetadata, error) {
	var meta EmbeddingMetadata
	err := d.db.QueryRow(`
		SELECT item_id, model_name, indexed_at, content_hash
		FROM embedding_metadata
		WHERE item_id = ?
	`, itemID).Scan(&meta.ItemID, &meta.ModelName, &meta.IndexedAt, &meta.ContentHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &meta, nil
}

// ClearEmbeddingMetadata removes all embedding metadata.
func (d *DB) ClearEmbeddingMetadata() error {
	_, err := d.db.Exec("DELETE FROM embedding_metadata")
	return err
}

// CountEmbeddingMetadata returns the number of items with embedding metadata.
func (d *DB) CountEmbeddingMetadata() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM embedding_metadata").Scan(&count)
	return count, err
}

// ListStaleItemIDs returns items whose current content hash differs from the
// hash recorded when they were embedded, plus items never embedded.
func (d *DB) ListStaleItemIDs() ([]string, error) {
	rows, err := d.db.Query(`
		SELECT i.id
		FROM items i
		LEFT JOIN embedding_metadata m ON m.item_id = i.id
		WHERE m.item_id IS NULL OR (i.hash != '' AND m.content_hash != i.hash)
		ORDER BY i.seq
	`)
	if err != nil {
		return nil, fmt.Errorf("listing stale items: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
