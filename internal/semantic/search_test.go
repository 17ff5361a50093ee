package semantic

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"identical vectors", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal vectors", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite vectors", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"similar vectors", []float32{1, 1}, []float32{1, 0}, 0.7071067},
		{"empty vectors", []float32{}, []float32{}, 0.0},
		{"different lengths", []float32{1, 0}, []float32{1, 0, 0}, 0.0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 0, 0}, 0.0},
		{"scale invariant", []float32{3, 4}, []float32{0.6, 0.8}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(float64(got-tt.expected)) > 0.0001 {
				t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestEuclideanDistance(t *testing.T) {
	if got := EuclideanDistance([]float32{0, 0}, []float32{3, 4}); math.Abs(float64(got-5)) > 1e-6 {
		t.Errorf("EuclideanDistance() = %v, want 5", got)
	}
	if got := EuclideanDistance([]float32{1}, []float32{1, 2}); !math.IsInf(float64(got), 1) {
		t.Errorf("EuclideanDistance(mismatch) = %v, want +Inf", got)
	}
}

func TestParseMetric(t *testing.T) {
	for _, s := range []string{"cosine", "euclidean"} {
		if m, err := ParseMetric(s); err != nil || string(m) != s {
			t.Errorf("ParseMetric(%q) = %q, %v", s, m, err)
		}
	}
	if _, err := ParseMetric("l1"); err == nil {
		t.Error("ParseMetric(l1) expected error")
	}
}

func searchIndex() *SemanticIndex {
	idx := NewSemanticIndex("m", 2)
	idx.AddEmbedding("a/1", []float32{1, 0})
	idx.AddEmbedding("a/2", []float32{2, 0.2})  // same direction as a/1, farther away
	idx.AddEmbedding("b/1", []float32{0.9, 0.5}) // close to a/1 in L2, less so in angle
	idx.AddEmbedding("c/1", []float32{0, 1})
	return idx
}

func resultIDs(rs []SearchResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ItemID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFindSimilar(t *testing.T) {
	idx := searchIndex()

	cos, err := idx.FindSimilar("a/1", 0, Cosine)
	if err != nil {
		t.Fatalf("FindSimilar() error = %v", err)
	}
	if want := []string{"a/2", "b/1", "c/1"}; !equalIDs(resultIDs(cos), want) {
		t.Errorf("cosine FindSimilar() = %v, want %v", resultIDs(cos), want)
	}

	euc, err := idx.FindSimilar("a/1", 2, Euclidean)
	if err != nil {
		t.Fatalf("FindSimilar() error = %v", err)
	}
	if want := []string{"b/1", "a/2"}; !equalIDs(resultIDs(euc), want) {
		t.Errorf("euclidean FindSimilar() = %v, want %v", resultIDs(euc), want)
	}
	if euc[0].Score > euc[1].Score {
		t.Error("euclidean scores should ascend")
	}

	if _, err := idx.FindSimilar("nobody", 3, Cosine); err != ErrItemNotIndexed {
		t.Errorf("FindSimilar(missing) error = %v", err)
	}
}

func TestMostSimilar_TiesByID(t *testing.T) {
	idx := NewSemanticIndex("m", 2)
	idx.AddEmbedding("z", []float32{1, 0})
	idx.AddEmbedding("y", []float32{1, 0})
	idx.AddEmbedding("x", []float32{1, 0})

	got := resultIDs(idx.MostSimilar([]float32{1, 0}, 0, Cosine))
	if want := []string{"x", "y", "z"}; !equalIDs(got, want) {
		t.Errorf("MostSimilar() = %v, want %v", got, want)
	}
}

func TestMostSimilar_WrongDimensions(t *testing.T) {
	if got := searchIndex().MostSimilar([]float32{1}, 3, Cosine); got != nil {
		t.Errorf("MostSimilar() = %v, want nil", got)
	}
}

func TestSearch_Threshold(t *testing.T) {
	idx := searchIndex()
	got := idx.Search([]float32{1, 0}, 10, 0.5)
	if want := []string{"a/1", "a/2", "b/1"}; !equalIDs(resultIDs(got), want) {
		t.Errorf("Search() = %v, want %v", resultIDs(got), want)
	}
	if got := idx.Search([]float32{1, 0}, 1, 0); len(got) != 1 {
		t.Errorf("Search(limit 1) returned %d", len(got))
	}
}
