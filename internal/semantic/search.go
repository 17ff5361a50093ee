package semantic

import (
	"math"
	"sort"
)

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denominator := float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB)))
	if denominator == 0 {
		return 0
	}

	return dot / denominator
}

// EuclideanDistance computes the L2 distance between two vectors.
// Vectors of different lengths are infinitely far apart.
func EuclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// Score compares two vectors under m.
func (m Metric) Score(a, b []float32) float32 {
	if m == Euclidean {
		return EuclideanDistance(a, b)
	}
	return CosineSimilarity(a, b)
}

// rankResults sorts best first, breaking score ties by item ID, and applies limit.
func rankResults(results []SearchResult, metric Metric, limit int) []SearchResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return metric.better(results[i].Score, results[j].Score)
		}
		return results[i].ItemID < results[j].ItemID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// MostSimilar ranks every indexed item against a query embedding and
// returns the best limit results. limit <= 0 returns all.
func (idx *SemanticIndex) MostSimilar(query []float32, limit int, metric Metric) []SearchResult {
	if idx.Embeddings == nil || len(query) != idx.Dimensions {
		return nil
	}

	results := make([]SearchResult, 0, len(idx.Embeddings))
	for id, emb := range idx.Embeddings {
		results = append(results, SearchResult{ItemID: id, Score: metric.Score(query, emb)})
	}
	return rankResults(results, metric, limit)
}

// Search is MostSimilar under cosine similarity, keeping only results at or
// above threshold.
func (idx *SemanticIndex) Search(query []float32, limit int, threshold float32) []SearchResult {
	all := idx.MostSimilar(query, 0, Cosine)
	out := all[:0]
	for _, r := range all {
		if r.Score >= threshold {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FindSimilar ranks every other item against the embedding of itemID.
// The source item is excluded from results.
func (idx *SemanticIndex) FindSimilar(itemID string, limit int, metric Metric) ([]SearchResult, error) {
	embedding, exists := idx.Embeddings[itemID]
	if !exists {
		return nil, ErrItemNotIndexed
	}

	results := make([]SearchResult, 0, len(idx.Embeddings)-1)
	for id, emb := range idx.Embeddings {
		if id == itemID {
			continue
		}
		results = append(results, SearchResult{ItemID: id, Score: metric.Score(embedding, emb)})
	}
	return rankResults(results, metric, limit), nil
}
