package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// maxSubSteps bounds the work of a single long predict. Beyond it the
// sub-step grows past MaxPredictDt.
const maxSubSteps = 50

// eye returns an n×n identity matrix.
func eye(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

// symmetrize returns (A + Aᵀ)/2 as a SymDense.
func symmetrize(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return s
}

// propagate returns F P Fᵀ + Q.
func propagate(p *mat.SymDense, f *mat.Dense, q *mat.SymDense) *mat.SymDense {
	var fp, fpf mat.Dense
	fp.Mul(f, p)
	fpf.Mul(&fp, f.T())
	out := symmetrize(&fpf)
	out.AddSym(out, q)
	return out
}

// correct applies a measurement update with innovation y, measurement
// matrix h and measurement noise r. The covariance uses the Joseph form
//
//	P' = (I − KH) P (I − KH)ᵀ + K R Kᵀ
//
// which stays symmetric positive semi-definite under rounding. ok is false
// when the innovation covariance cannot be inverted; x and p are then
// returned unchanged.
func correct(x *mat.VecDense, p *mat.SymDense, h *mat.Dense, r *mat.SymDense, y *mat.VecDense) (*mat.VecDense, *mat.SymDense, bool) {
	n := x.Len()

	var hp, s mat.Dense
	hp.Mul(h, p)
	s.Mul(&hp, h.T())
	s.Add(&s, r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return x, p, false
	}

	var pht, k mat.Dense
	pht.Mul(p, h.T())
	k.Mul(&pht, &sInv)

	var dx mat.VecDense
	dx.MulVec(&k, y)
	xNew := mat.NewVecDense(n, nil)
	xNew.AddVec(x, &dx)

	var kh mat.Dense
	kh.Mul(&k, h)
	ikh := eye(n)
	ikh.Sub(ikh, &kh)

	var a, apa, kr, krk mat.Dense
	a.Mul(ikh, p)
	apa.Mul(&a, ikh.T())
	kr.Mul(&k, r)
	krk.Mul(&kr, k.T())
	apa.Add(&apa, &krk)

	return xNew, symmetrize(&apa), true
}

// condition floors and caps the covariance diagonal in place. Flooring adds
// to the diagonal; capping scales the whole row and column, so the matrix
// stays positive semi-definite either way.
func condition(p *mat.SymDense, lo, hi float64) {
	n := p.SymmetricDim()
	for i := 0; i < n; i++ {
		if v := p.At(i, i); v < lo || math.IsNaN(v) {
			p.SetSym(i, i, lo)
		}
	}
	for i := 0; i < n; i++ {
		v := p.At(i, i)
		if v <= hi {
			continue
		}
		s := math.Sqrt(hi / v)
		for j := 0; j < n; j++ {
			if j == i {
				p.SetSym(i, i, hi)
				continue
			}
			p.SetSym(i, j, p.At(i, j)*s)
		}
	}
}

// finite reports whether every element of x and p is finite.
func finite(x *mat.VecDense, p *mat.SymDense) bool {
	for i := 0; i < x.Len(); i++ {
		if v := x.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	n := p.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if v := p.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// diagSym builds a diagonal covariance.
func diagSym(v ...float64) *mat.SymDense {
	s := mat.NewSymDense(len(v), nil)
	for i, d := range v {
		s.SetSym(i, i, d)
	}
	return s
}

// whiteAccelQ returns the discrete white-acceleration process noise for a
// position/velocity pair: q·[dt⁴/4, dt³/2; dt³/2, dt²].
func whiteAccelQ(q, dt float64) (pp, pv, vv float64) {
	dt2 := dt * dt
	return q * dt2 * dt2 / 4, q * dt2 * dt / 2, q * dt2
}

// substeps splits dt seconds into steps no longer than maxDt.
func substeps(dt, maxDt float64, step func(float64)) {
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return
	}
	if maxDt <= 0 {
		maxDt = dt
	}
	n := int(math.Ceil(dt / maxDt))
	if n > maxSubSteps {
		n = maxSubSteps
	}
	if n < 1 {
		n = 1
	}
	h := dt / float64(n)
	for i := 0; i < n; i++ {
		step(h)
	}
}
