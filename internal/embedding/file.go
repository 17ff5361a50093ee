package embedding

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// VectorRecord is one line of an embeddings JSONL file.
type VectorRecord struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

// FileProvider serves precomputed embeddings, typically exported from a
// model trained elsewhere.
type FileProvider struct {
	name       string
	dimensions int
	vectors    map[string][]float32
}

// LoadFileProvider reads an embeddings JSONL file. Every vector must have the
// same length; later lines overwrite earlier ones with the same id.
func LoadFileProvider(path string) (*FileProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening embeddings file: %w", err)
	}
	defer f.Close()

	p := &FileProvider{
		name:    "file:" + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		vectors: make(map[string][]float32),
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec VectorRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("line %d: missing id", lineNum)
		}
		if p.dimensions == 0 {
			p.dimensions = len(rec.Vector)
		}
		if len(rec.Vector) != p.dimensions || p.dimensions == 0 {
			return nil, fmt.Errorf("line %d: embedding dimension mismatch: got %d, want %d", lineNum, len(rec.Vector), p.dimensions)
		}
		p.vectors[rec.ID] = rec.Vector
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading embeddings file: %w", err)
	}
	if len(p.vectors) == 0 {
		return nil, fmt.Errorf("no embeddings in %s", path)
	}

	return p, nil
}

// Embed returns the stored vector for in.ID.
func (p *FileProvider) Embed(ctx context.Context, in Input) (Embedding, error) {
	v, ok := p.vectors[in.ID]
	if !ok {
		return Embedding{}, fmt.Errorf("%w: %s", ErrNotFound, in.ID)
	}
	return Embedding{Vector: v}, nil
}

// ModelName returns the name derived from the file name.
func (p *FileProvider) ModelName() string {
	return p.name
}

// Dimensions returns the vector length found in the file.
func (p *FileProvider) Dimensions() int {
	return p.dimensions
}

// Len returns the number of stored vectors.
func (p *FileProvider) Len() int {
	return len(p.vectors)
}
