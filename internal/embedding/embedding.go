// Package embedding produces fixed-length vectors for dataset images.
package embedding

import "errors"

// ErrNotFound is returned when a provider has no vector for an item.
var ErrNotFound = errors.New("no embedding for item")

// Embedding represents a vector embedding of an image.
type Embedding struct {
	Vector []float32
}

// Dimensions returns the dimensionality of the embedding.
func (e Embedding) Dimensions() int {
	return len(e.Vector)
}

// Input identifies the image to embed.
type Input struct {
	ID   string // Item ID, used by providers that look vectors up
	Path string // Absolute path of the image file
}
