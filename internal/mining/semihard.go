package mining

import (
	"fmt"
	"math/rand"

	"github.com/matsen/simlearn/internal/sampling"
)

// SemiHard picks a negative for the (anchor, positive) pair.
//
// A candidate n is acceptable when labels[n] != labels[anchor] and
// S[anchor, n] + margin > S[anchor, positive]: it is at most margin less
// similar to the anchor than the positive is. One acceptable candidate is
// drawn uniformly; if none exists a uniformly random different-label item is
// returned and fallback is true.
func SemiHard(labels []int, sim *Matrix, anchor, positive int, margin float32, rng *rand.Rand) (negative int, fallback bool, err error) {
	if sim.N != len(labels) {
		return 0, false, fmt.Errorf("%w: %d labels for a %dx%d matrix", ErrShapeMismatch, len(labels), sim.N, sim.N)
	}

	row := sim.Row(anchor)
	threshold := row[positive]
	anchorLabel := labels[anchor]

	var acceptable, others []int
	for n, s := range row {
		if labels[n] == anchorLabel {
			continue
		}
		others = append(others, n)
		if s+margin > threshold {
			acceptable = append(acceptable, n)
		}
	}

	if len(others) == 0 {
		return 0, false, ErrNoNegative
	}
	if len(acceptable) > 0 {
		return acceptable[rng.Intn(len(acceptable))], false, nil
	}
	return others[rng.Intn(len(others))], true, nil
}

// Stats counts how mined negatives were chosen.
type Stats struct {
	Mined    int `json:"mined"`
	Fallback int `json:"fallback"`
}

// Miner mines one semi-hard triplet per positive pair against a fixed
// similarity matrix.
type Miner struct {
	labels []int
	sim    *Matrix
	margin float32
	rng    *rand.Rand
}

// NewMiner creates a miner. labels[i] is the class of matrix row i.
func NewMiner(labels []int, sim *Matrix, margin float32, rng *rand.Rand) (*Miner, error) {
	if sim.N != len(labels) {
		return nil, fmt.Errorf("%w: %d labels for a %dx%d matrix", ErrShapeMismatch, len(labels), sim.N, sim.N)
	}
	return &Miner{labels: labels, sim: sim, margin: margin, rng: rng}, nil
}

// Triplets mines a negative for each positive pair, in pair order.
func (m *Miner) Triplets(pairs []sampling.Pair) ([]sampling.Triplet, Stats, error) {
	var stats Stats
	out := make([]sampling.Triplet, 0, len(pairs))
	for _, p := range pairs {
		neg, fallback, err := SemiHard(m.labels, m.sim, p.A, p.B, m.margin, m.rng)
		if err != nil {
			return nil, stats, fmt.Errorf("mining pair (%d, %d): %w", p.A, p.B, err)
		}
		if fallback {
			stats.Fallback++
		} else {
			stats.Mined++
		}
		out = append(out, sampling.Triplet{Anchor: p.A, Positive: p.B, Negative: neg})
	}
	return out, stats, nil
}

// TripletLoss returns the mean of max(0, margin + S[a,n] - S[a,p]) over
// triplets, the cosine-similarity form of the triplet margin loss.
func TripletLoss(sim *Matrix, triplets []sampling.Triplet, margin float32) float32 {
	if len(triplets) == 0 {
		return 0
	}
	var total float64
	for _, t := range triplets {
		l := margin + sim.At(t.Anchor, t.Negative) - sim.At(t.Anchor, t.Positive)
		if l > 0 {
			total += float64(l)
		}
	}
	return float32(total / float64(len(triplets)))
}

// ActiveFraction returns the share of triplets with a positive loss term.
func ActiveFraction(sim *Matrix, triplets []sampling.Triplet, margin float32) float32 {
	if len(triplets) == 0 {
		return 0
	}
	active := 0
	for _, t := range triplets {
		if margin+sim.At(t.Anchor, t.Negative)-sim.At(t.Anchor, t.Positive) > 0 {
			active++
		}
	}
	return float32(active) / float32(len(triplets))
}
