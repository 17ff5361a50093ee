package embedding

import "context"

// Provider generates embeddings from images.
type Provider interface {
	// Embed generates an embedding for the given image.
	Embed(ctx context.Context, in Input) (Embedding, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Dimensions returns the expected vector dimensions.
	Dimensions() int
}
