// Package sampling builds positive/negative pairs and triplets for
// siamese and triplet-loss training.
//
// All sampling is driven by a seeded generator, so the same dataset and seed
// always yield the same pairs in the same order.
package sampling

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/matsen/simlearn/internal/dataset"
)

// Errors returned by samplers.
var (
	ErrNotEnoughIdentities = errors.New("need at least two identities to sample negatives")
	ErrNoPositives         = errors.New("no identity has two or more images")
)

// Labels for pair records.
const (
	LabelNegative = 0
	LabelPositive = 1
)

// Pair is two item positions with a same/different label.
type Pair struct {
	A     int `json:"a"`
	B     int `json:"b"`
	Label int `json:"label"`
}

// Triplet is an anchor, a same-identity positive and a different-identity negative.
type Triplet struct {
	Anchor   int `json:"anchor"`
	Positive int `json:"positive"`
	Negative int `json:"negative"`
}

// Sampler draws pairs and triplets from a dataset index.
type Sampler struct {
	idx *dataset.Index
	rng *rand.Rand
}

// New creates a sampler seeded with seed.
func New(idx *dataset.Index, seed int64) *Sampler {
	return &Sampler{idx: idx, rng: rand.New(rand.NewSource(seed))}
}

// Rand exposes the sampler's generator so callers can share one seeded stream.
func (s *Sampler) Rand() *rand.Rand {
	return s.rng
}

// PositivePairs returns all unordered pairs of an identity's images, shuffled
// and truncated to maxPairs. maxPairs <= 0 keeps every pair.
func (s *Sampler) PositivePairs(identity string, maxPairs int) ([]Pair, error) {
	members := s.idx.ItemsFor(identity)
	if members == nil {
		return nil, fmt.Errorf("%w: %s", dataset.ErrUnknownIdentity, identity)
	}

	pairs := make([]Pair, 0, len(members)*(len(members)-1)/2)
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			pairs = append(pairs, Pair{A: members[i], B: members[j], Label: LabelPositive})
		}
	}

	s.rng.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
	if maxPairs > 0 && len(pairs) > maxPairs {
		pairs = pairs[:maxPairs]
	}
	return pairs, nil
}

// AllPositivePairs concatenates PositivePairs over every multi-image identity,
// in sorted identity order.
func (s *Sampler) AllPositivePairs(maxPerIdentity int) ([]Pair, error) {
	multi := s.idx.Multi()
	if len(multi) == 0 {
		return nil, ErrNoPositives
	}

	var out []Pair
	for _, identity := range multi {
		pairs, err := s.PositivePairs(identity, maxPerIdentity)
		if err != nil {
			return nil, err
		}
		out = append(out, pairs...)
	}
	return out, nil
}

// RandomNegative returns a uniformly random item whose identity differs from
// the identity of item anchor.
func (s *Sampler) RandomNegative(anchor int) (int, error) {
	if len(s.idx.Identities()) < 2 {
		return 0, ErrNotEnoughIdentities
	}
	identity := s.idx.IdentityOf(anchor)
	n := s.idx.Len()
	for {
		candidate := s.rng.Intn(n)
		if s.idx.IdentityOf(candidate) != identity {
			return candidate, nil
		}
	}
}

// NegativePairs returns n pairs whose items belong to different identities.
// The first item is drawn uniformly over all items.
func (s *Sampler) NegativePairs(n int) ([]Pair, error) {
	if len(s.idx.Identities()) < 2 {
		return nil, ErrNotEnoughIdentities
	}

	pairs := make([]Pair, 0, n)
	for len(pairs) < n {
		a := s.rng.Intn(s.idx.Len())
		b, err := s.RandomNegative(a)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{A: a, B: b, Label: LabelNegative})
	}
	return pairs, nil
}

// BalancedPairs returns every positive pair (capped per identity) plus the same
// number of random negative pairs, shuffled together.
func (s *Sampler) BalancedPairs(maxPerIdentity int) ([]Pair, error) {
	pos, err := s.AllPositivePairs(maxPerIdentity)
	if err != nil {
		return nil, err
	}
	neg, err := s.NegativePairs(len(pos))
	if err != nil {
		return nil, err
	}

	all := append(pos, neg...)
	s.rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all, nil
}

// RandomTriplets turns every positive pair into a triplet with a uniformly
// random negative.
func (s *Sampler) RandomTriplets(maxPerIdentity int) ([]Triplet, error) {
	pos, err := s.AllPositivePairs(maxPerIdentity)
	if err != nil {
		return nil, err
	}
	if len(s.idx.Identities()) < 2 {
		return nil, ErrNotEnoughIdentities
	}

	triplets := make([]Triplet, 0, len(pos))
	for _, p := range pos {
		neg, err := s.RandomNegative(p.A)
		if err != nil {
			return nil, err
		}
		triplets = append(triplets, Triplet{Anchor: p.A, Positive: p.B, Negative: neg})
	}
	return triplets, nil
}

// Batches splits values into consecutive batches of size items.
// The last batch may be short; size <= 0 yields a single batch.
func Batches[T any](values []T, size int) [][]T {
	if len(values) == 0 {
		return nil
	}
	if size <= 0 || size >= len(values) {
		return [][]T{values}
	}

	batches := make([][]T, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		batches = append(batches, values[start:end])
	}
	return batches
}
