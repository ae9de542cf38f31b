package vector

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// zeroNorm replaces a zero norm so degenerate rows rank with similarity 0
// instead of dividing by zero.
const zeroNorm = 1e-8

type Neighbor struct {
	Index    int     `json:"index"`
	Distance float64 `json:"distance"`
}

// Rank orders every candidate by cosine distance (1 - cosine similarity) to query,
// best first. Equal distances keep their candidate order. The returned indices
// point into candidates.
func Rank(query Vector, candidates []Vector) ([]Neighbor, error) {
	for i, c := range candidates {
		if len(c) != len(query) {
			return nil, fmt.Errorf("%w: query has %d dims, candidate %d has %d dims",
				ErrDimensionMismatch, len(query), i, len(c))
		}
	}

	qNorm := query.Norm()
	if qNorm == 0 {
		qNorm = zeroNorm
	}

	neighbors := make([]Neighbor, len(candidates))
	for i, c := range candidates {
		cNorm := c.Norm()
		if cNorm == 0 {
			cNorm = zeroNorm
		}

		var dot float64
		for j := range c {
			dot += (query[j] / qNorm) * (c[j] / cNorm)
		}

		distance := 1 - dot
		if math.IsNaN(distance) {
			distance = math.Inf(1)
		}

		neighbors[i] = Neighbor{
			Index:    i,
			Distance: distance,
		}
	}

	slices.SortStableFunc(neighbors, func(a, b Neighbor) int {
		return cmp.Compare(a.Distance, b.Distance)
	})

	return neighbors, nil
}

// Similarity returns the cosine similarity of a and b using the same zero-norm
// handling as Rank.
func Similarity(a, b Vector) (float64, error) {
	neighbors, err := Rank(a, []Vector{b})
	if err != nil {
		return 0, err
	}

	return 1 - neighbors[0].Distance, nil
}
