package semantic

import (
	"errors"
	"fmt"
	"sort"

	"github.com/matsen/simlearn/internal/parallel"
)

// Errors returned by evaluation.
var (
	ErrInvalidK  = errors.New("k must be positive")
	ErrNoQueries = errors.New("no identity has two or more indexed items")
)

// Recall is recall@K over a query set.
type Recall struct {
	K       int     `json:"k"`
	Queries int     `json:"queries"`
	Hits    int     `json:"hits"`
	Value   float64 `json:"recall"`
}

// Evaluation is the outcome of a retrieval evaluation.
type Evaluation struct {
	Metric     Metric   `json:"metric"`
	Candidates int      `json:"candidates"` // Labeled items ranked for every query
	Queries    int      `json:"queries"`    // Items whose identity has another indexed item
	Recalls    []Recall `json:"recalls"`
	MRR        float64  `json:"mrr"` // Mean reciprocal rank of the first same-identity neighbor
}

// Evaluate ranks, for each query item, every other labeled item under metric
// and records where the first item of the same identity lands.
//
// labels maps item IDs to identities; indexed items without a label are
// ignored. A query is any labeled item whose identity has at least one other
// labeled item in the index. Recall@k is the fraction of queries with a
// same-identity item among their top k neighbors, the query itself excluded.
// Ties in score are broken by item ID.
func Evaluate(idx *SemanticIndex, labels map[string]string, ks []int, metric Metric, workers int) (*Evaluation, error) {
	if len(ks) == 0 {
		return nil, fmt.Errorf("%w: no k given", ErrInvalidK)
	}
	for _, k := range ks {
		if k <= 0 {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
		}
	}

	var ids []string
	count := make(map[string]int)
	for _, id := range idx.IDs() {
		identity, ok := labels[id]
		if !ok {
			continue
		}
		ids = append(ids, id)
		count[identity]++
	}

	var queries []int
	for i, id := range ids {
		if count[labels[id]] >= 2 {
			queries = append(queries, i)
		}
	}
	if len(queries) == 0 {
		return nil, ErrNoQueries
	}

	vectors := make([][]float32, len(ids))
	idents := make([]string, len(ids))
	for i, id := range ids {
		vectors[i] = idx.Embeddings[id]
		idents[i] = labels[id]
	}

	ranks := make([]int, len(queries))
	parallel.ForEach(len(queries), workers, func(qi int) {
		ranks[qi] = firstRelevantRank(queries[qi], vectors, idents, ids, metric)
	})

	ev := &Evaluation{Metric: metric, Candidates: len(ids), Queries: len(queries)}
	var rr float64
	for _, r := range ranks {
		rr += 1 / float64(r)
	}
	ev.MRR = rr / float64(len(ranks))

	sorted := append([]int(nil), ks...)
	sort.Ints(sorted)
	for _, k := range sorted {
		hits := 0
		for _, r := range ranks {
			if r <= k {
				hits++
			}
		}
		ev.Recalls = append(ev.Recalls, Recall{
			K:       k,
			Queries: len(queries),
			Hits:    hits,
			Value:   float64(hits) / float64(len(queries)),
		})
	}
	return ev, nil
}

// RecallAtK evaluates recall at a single k.
func RecallAtK(idx *SemanticIndex, labels map[string]string, k int, metric Metric) (Recall, error) {
	ev, err := Evaluate(idx, labels, []int{k}, metric, 0)
	if err != nil {
		return Recall{}, err
	}
	return ev.Recalls[0], nil
}

// firstRelevantRank returns the 1-based rank of the best same-identity
// neighbor of item q among all other items.
func firstRelevantRank(q int, vectors [][]float32, idents, ids []string, metric Metric) int {
	scores := make([]float32, len(vectors))
	best := -1
	for c := range vectors {
		if c == q {
			continue
		}
		scores[c] = metric.Score(vectors[q], vectors[c])
		if idents[c] != idents[q] {
			continue
		}
		if best < 0 || ahead(metric, scores[c], ids[c], scores[best], ids[best]) {
			best = c
		}
	}

	rank := 1
	for c := range vectors {
		if c == q || c == best {
			continue
		}
		if ahead(metric, scores[c], ids[c], scores[best], ids[best]) {
			rank++
		}
	}
	return rank
}

// ahead reports whether (scoreA, idA) ranks before (scoreB, idB).
func ahead(metric Metric, scoreA float32, idA string, scoreB float32, idB string) bool {
	if scoreA != scoreB {
		return metric.better(scoreA, scoreB)
	}
	return idA < idB
}
