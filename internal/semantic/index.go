package semantic

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/matsen/simlearn/internal/config"
)

// Errors returned by semantic index operations.
var (
	ErrIndexNotFound      = errors.New("embedding index not found")
	ErrItemNotIndexed     = errors.New("item not in embedding index")
	ErrUnsupportedVersion = errors.New("unsupported index version")
)

// CurrentIndexVersion is the format version for compatibility checking.
// Increment this when making breaking changes to the index format.
const CurrentIndexVersion = 1

// IndexPath returns the path to the embedding index file.
func IndexPath(root string) string {
	return config.IndexPath(root)
}

// NewSemanticIndex creates a new empty index.
func NewSemanticIndex(modelName string, dimensions int) *SemanticIndex {
	return &SemanticIndex{
		Version:    CurrentIndexVersion,
		ModelName:  modelName,
		Dimensions: dimensions,
		CreatedAt:  time.Now(),
		Embeddings: make(map[string][]float32),
	}
}

// AddEmbedding adds an item embedding to the index.
// ItemCount is updated to reflect the current number of embeddings.
func (idx *SemanticIndex) AddEmbedding(itemID string, embedding []float32) error {
	if len(embedding) != idx.Dimensions {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), idx.Dimensions)
	}
	idx.Embeddings[itemID] = embedding
	idx.ItemCount = len(idx.Embeddings)
	return nil
}

// Remove drops an item from the index.
func (idx *SemanticIndex) Remove(itemID string) {
	delete(idx.Embeddings, itemID)
	idx.ItemCount = len(idx.Embeddings)
}

// HasItem checks if an item is in the index.
func (idx *SemanticIndex) HasItem(itemID string) bool {
	_, exists := idx.Embeddings[itemID]
	return exists
}

// IDs returns every indexed item ID, sorted.
func (idx *SemanticIndex) IDs() []string {
	ids := make([]string, 0, len(idx.Embeddings))
	for id := range idx.Embeddings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Vectors returns the embeddings of ids in the given order.
func (idx *SemanticIndex) Vectors(ids []string) ([][]float32, error) {
	out := make([][]float32, len(ids))
	for i, id := range ids {
		v, ok := idx.Embeddings[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrItemNotIndexed, id)
		}
		out[i] = v
	}
	return out, nil
}

// Save persists the index to disk using GOB encoding.
func (idx *SemanticIndex) Save(root string) error {
	indexPath := IndexPath(root)

	cacheDir := filepath.Dir(indexPath)
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	// Write to a temp file first, then rename for atomicity
	tempPath := indexPath + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	enc := gob.NewEncoder(f)
	if err := enc.Encode(idx); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encoding index: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing file: %w", err)
	}

	if err := os.Rename(tempPath, indexPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// Load reads the index from disk.
// Returns ErrUnsupportedVersion if the index was created with an incompatible format.
func Load(root string) (*SemanticIndex, error) {
	f, err := os.Open(IndexPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()

	var idx SemanticIndex
	if err := gob.NewDecoder(f).Decode(&idx); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}

	if idx.Version != CurrentIndexVersion {
		return nil, fmt.Errorf("%w: got %d, want %d (rebuild with 'simlearn index build')",
			ErrUnsupportedVersion, idx.Version, CurrentIndexVersion)
	}
	if idx.Embeddings == nil {
		idx.Embeddings = make(map[string][]float32)
	}

	return &idx, nil
}

// IndexSize returns the size of the index file in bytes.
func IndexSize(root string) (int64, error) {
	info, err := os.Stat(IndexPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrIndexNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

// Exists checks if the index file exists.
func Exists(root string) bool {
	_, err := os.Stat(IndexPath(root))
	return err == nil
}
