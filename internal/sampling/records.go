package sampling

import "github.com/matsen/simlearn/internal/dataset"

// PairRecord is the exported form of a Pair, addressed by item ID.
type PairRecord struct {
	A     string `json:"a"`
	B     string `json:"b"`
	PathA string `json:"path_a"`
	PathB string `json:"path_b"`
	Label int    `json:"label"`
}

// TripletRecord is the exported form of a Triplet, addressed by item ID.
type TripletRecord struct {
	Anchor       string `json:"anchor"`
	Positive     string `json:"positive"`
	Negative     string `json:"negative"`
	AnchorPath   string `json:"anchor_path"`
	PositivePath string `json:"positive_path"`
	NegativePath string `json:"negative_path"`
}

// PairRecords resolves item positions to IDs and paths.
func PairRecords(idx *dataset.Index, pairs []Pair) []PairRecord {
	out := make([]PairRecord, len(pairs))
	for i, p := range pairs {
		a, b := idx.Item(p.A), idx.Item(p.B)
		out[i] = PairRecord{A: a.ID, B: b.ID, PathA: a.Path, PathB: b.Path, Label: p.Label}
	}
	return out
}

// TripletRecords resolves item positions to IDs and paths.
func TripletRecords(idx *dataset.Index, triplets []Triplet) []TripletRecord {
	out := make([]TripletRecord, len(triplets))
	for i, t := range triplets {
		a, p, n := idx.Item(t.Anchor), idx.Item(t.Positive), idx.Item(t.Negative)
		out[i] = TripletRecord{
			Anchor: a.ID, Positive: p.ID, Negative: n.ID,
			AnchorPath: a.Path, PositivePath: p.Path, NegativePath: n.Path,
		}
	}
	return out
}
