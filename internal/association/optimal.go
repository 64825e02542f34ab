package association

import "math"

// forbidden stands in for Unassignable inside the optimal solver, which
// needs finite arithmetic. Real costs must stay far below it.
const forbidden = 1e9

// Optimal solves the rectangular assignment problem for m with the
// Kuhn-Munkres algorithm (potentials, Jonker-Volgenant style) in O(n³).
// Unassignable entries are never selected. It minimises the total cost of
// the matching, which Assign does not, and is used to measure how far the
// greedy result is from optimal.
func Optimal(m CostMatrix) Result {
	res := newResult(m.Rows, m.Cols)
	if m.Rows == 0 || m.Cols == 0 {
		return res
	}

	// Pad to a square matrix; padded cells are forbidden.
	dim := max(m.Rows, m.Cols)
	c := make([][]float64, dim)
	for i := range c {
		c[i] = make([]float64, dim)
		for j := range c[i] {
			c[i][j] = forbidden
			if i < m.Rows && j < m.Cols {
				if v := m.At(i, j); !math.IsInf(v, 0) && !math.IsNaN(v) {
					c[i][j] = v
				}
			}
		}
	}

	// 1-indexed internally; column 0 is the virtual start column.
	const inf = math.MaxFloat64 / 2
	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	owner := make([]int, dim+1) // owner[j] = row matched to column j
	way := make([]int, dim+1)
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		owner[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := owner[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				if cur := c[i0-1][j-1] - u[i0] - v[j]; cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}
			for j := 0; j <= dim; j++ {
				if used[j] {
					u[owner[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if owner[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			owner[j0] = owner[way[j0]]
			j0 = way[j0]
		}
	}

	for j := 1; j <= dim; j++ {
		i := owner[j] - 1
		col := j - 1
		if i < 0 || i >= m.Rows || col >= m.Cols || c[i][col] >= forbidden {
			continue
		}
		res.Forward[i] = col
		res.Reverse[col] = i
	}
	return res
}
