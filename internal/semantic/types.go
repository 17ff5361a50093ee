// Package semantic stores image embeddings and scores them by nearest-neighbor
// retrieval.
package semantic

import (
	"fmt"
	"time"
)

// SemanticIndex holds embeddings for all indexed items.
type SemanticIndex struct {
	// Version is the format version for compatibility checking.
	// Check against CurrentIndexVersion when loading.
	Version int `json:"version"`

	ModelName       string    `json:"model_name"`        // e.g. "pixels-32"
	Dimensions      int       `json:"dimensions"`        // 1024 for pixels-32
	CreatedAt       time.Time `json:"created_at"`        // When index was built
	ItemCount       int       `json:"item_count"`        // Number of items indexed
	SkippedCount    int       `json:"skipped_count"`     // Items the provider had no vector for
	BuildDurationMs int64     `json:"build_duration_ms"` // Time to build in milliseconds

	// Embeddings map item IDs to their vector embeddings
	Embeddings map[string][]float32 `json:"-"`
}

// SearchResult is one retrieved item. Score is a cosine similarity or a
// Euclidean distance depending on the metric used.
type SearchResult struct {
	ItemID string  `json:"id"`
	Score  float32 `json:"score"`
}

// BuildStats contains statistics from index building.
type BuildStats struct {
	ItemsIndexed   int           `json:"items_indexed"`
	ItemsSkipped   int           `json:"items_skipped"`
	SkippedReason  string        `json:"skipped_reason"`
	Duration       time.Duration `json:"duration"`
	IndexSizeBytes int64         `json:"index_size_bytes"`
}

// Metric selects how neighbors are ranked.
type Metric string

const (
	// Cosine ranks by descending cosine similarity.
	Cosine Metric = "cosine"
	// Euclidean ranks by ascending Euclidean distance.
	Euclidean Metric = "euclidean"
)

// ParseMetric converts a metric name.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case Cosine, Euclidean:
		return Metric(s), nil
	}
	return "", fmt.Errorf("unknown metric %q (valid: cosine, euclidean)", s)
}

// better reports whether score a ranks ahead of score b under m.
func (m Metric) better(a, b float32) bool {
	if m == Euclidean {
		return a < b
	}
	return a > b
}
