package association

import (
	"cmp"
	"math"
	"slices"
)

// Result holds two injective partial mappings. Forward[track] is the matched
// detection index or -1; Reverse[detection] is the matched track index or -1.
type Result struct {
	Forward []int
	Reverse []int
}

func newResult(rows, cols int) Result {
	r := Result{Forward: make([]int, rows), Reverse: make([]int, cols)}
	for i := range r.Forward {
		r.Forward[i] = -1
	}
	for j := range r.Reverse {
		r.Reverse[j] = -1
	}
	return r
}

// Matched returns the number of committed pairs.
func (r Result) Matched() int {
	n := 0
	for _, j := range r.Forward {
		if j >= 0 {
			n++
		}
	}
	return n
}

// TotalCost sums the costs of the committed pairs.
func (r Result) TotalCost(m CostMatrix) float64 {
	var sum float64
	for i, j := range r.Forward {
		if j >= 0 {
			sum += m.At(i, j)
		}
	}
	return sum
}

type pair struct {
	cost     float64
	row, col int
}

// Assign matches tracks to detections greedily: every finite entry becomes
// a candidate, candidates are ordered by (cost, track index, detection
// index), and each is committed if neither side is taken yet. The result
// depends only on the matrix contents.
func Assign(m CostMatrix) Result {
	res := newResult(m.Rows, m.Cols)
	cands := make([]pair, 0, len(m.Data))
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			c := m.At(i, j)
			if math.IsNaN(c) || math.IsInf(c, 0) {
				continue
			}
			cands = append(cands, pair{cost: c, row: i, col: j})
		}
	}
	slices.SortFunc(cands, func(a, b pair) int {
		if c := cmp.Compare(a.cost, b.cost); c != 0 {
			return c
		}
		if c := cmp.Compare(a.row, b.row); c != 0 {
			return c
		}
		return cmp.Compare(a.col, b.col)
	})
	for _, p := range cands {
		if res.Forward[p.row] >= 0 || res.Reverse[p.col] >= 0 {
			continue
		}
		res.Forward[p.row] = p.col
		res.Reverse[p.col] = p.row
	}
	return res
}
