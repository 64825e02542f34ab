package uncertainty

import (
	"math"

	"github.com/banshee-data/objectfusion/internal/config"
	"github.com/banshee-data/objectfusion/internal/types"
	"gonum.org/v1/gonum/mat"
)

// Limits bounds the covariances Normalize produces.
type Limits struct {
	MinPositionVariance    float64
	MaxPositionVariance    float64
	MinYawVariance         float64
	UnavailableYawVariance float64 // floor when the detection has no heading
	MinTwistVariance       float64
}

// LimitsFromTuning builds Limits from a loaded TuningConfig.
func LimitsFromTuning(cfg *config.TuningConfig) Limits {
	return Limits{
		MinPositionVariance:    cfg.GetMinPositionVariance(),
		MaxPositionVariance:    cfg.GetMaxPositionVariance(),
		MinYawVariance:         cfg.GetMinYawVariance(),
		UnavailableYawVariance: cfg.GetUnavailableYawVariance(),
		MinTwistVariance:       cfg.GetMinTwistVariance(),
	}
}

// DefaultLimits returns the built-in limits.
func DefaultLimits() Limits {
	return LimitsFromTuning(config.EmptyTuningConfig())
}

// Normalize makes every detection in batch numerically usable:
//   - the x/y covariance block is symmetrised and its eigenvalues clamped
//     into [MinPositionVariance, MaxPositionVariance];
//   - non-finite variances and cross terms are repaired;
//   - yaw and twist variances are floored;
//   - orientation quaternions and class probabilities are renormalised.
//
// Detections whose pose is not finite cannot be repaired and are dropped.
// The number of dropped detections is returned.
func Normalize(batch *types.DetectionBatch, lim Limits) int {
	if batch == nil {
		return 0
	}
	kept := batch.Objects[:0]
	dropped := 0
	for _, obj := range batch.Objects {
		if !finitePose(obj) {
			dropped++
			continue
		}
		normalizeDetection(&obj, lim)
		kept = append(kept, obj)
	}
	batch.Objects = kept
	return dropped
}

func normalizeDetection(obj *types.Detection, lim Limits) {
	obj.Pose.Orientation = obj.Pose.Orientation.Normalized()
	obj.Classification = obj.Classification.Normalized()

	cov := &obj.PoseCovariance
	for i := range cov {
		if math.IsNaN(cov[i]) || math.IsInf(cov[i], 0) {
			if i%7 == 0 {
				cov[i] = lim.MaxPositionVariance
			} else {
				cov[i] = 0
			}
		}
	}

	xy := clampEigen(block2(*cov), lim.MinPositionVariance, lim.MaxPositionVariance)
	cov[types.CovXX] = xy.At(0, 0)
	cov[types.CovXY] = xy.At(0, 1)
	cov[types.CovYX] = xy.At(1, 0)
	cov[types.CovYY] = xy.At(1, 1)
	cov[types.CovZZ] = clamp(cov[types.CovZZ], lim.MinPositionVariance, lim.MaxPositionVariance)

	yawFloor := lim.MinYawVariance
	if obj.Orientation == types.OrientationUnavailable {
		yawFloor = math.Max(yawFloor, lim.UnavailableYawVariance)
	}
	cov[types.CovYawYaw] = math.Max(cov[types.CovYawYaw], yawFloor)
	// Keep the x/y-yaw cross terms consistent with the clamped variances.
	limitCross(cov, types.CovXYaw, types.CovYawX, cov[types.CovXX], cov[types.CovYawYaw])
	limitCross(cov, types.CovYYaw, types.CovYawY, cov[types.CovYY], cov[types.CovYawYaw])

	if obj.HasTwist {
		tw := &obj.TwistCovariance
		for i := range tw {
			if math.IsNaN(tw[i]) || math.IsInf(tw[i], 0) {
				tw[i] = 0
			}
		}
		tw[types.CovXX] = math.Max(tw[types.CovXX], lim.MinTwistVariance)
		tw[types.CovYY] = math.Max(tw[types.CovYY], lim.MinTwistVariance)
		tw[types.CovYawYaw] = math.Max(tw[types.CovYawYaw], lim.MinTwistVariance)
		sym := 0.5 * (tw[types.CovXY] + tw[types.CovYX])
		tw[types.CovXY], tw[types.CovYX] = sym, sym
		if !finiteTwist(obj.Twist) {
			obj.Twist = types.Twist{}
			obj.HasTwist = false
		}
	}
	if math.IsNaN(obj.ExistenceProbability) {
		obj.ExistenceProbability = 0
	}
	obj.ExistenceProbability = clamp(obj.ExistenceProbability, 0, 1)
}

// clampEigen returns V diag(clamp(λ)) Vᵀ for the symmetric matrix a.
func clampEigen(a *mat.SymDense, lo, hi float64) *mat.SymDense {
	var es mat.EigenSym
	if !es.Factorize(a, true) {
		out := mat.NewSymDense(2, nil)
		out.SetSym(0, 0, hi)
		out.SetSym(1, 1, hi)
		return out
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	d := mat.NewDiagDense(len(vals), nil)
	for i, v := range vals {
		d.SetDiag(i, clamp(v, lo, hi))
	}
	var tmp, res mat.Dense
	tmp.Mul(&vecs, d)
	res.Mul(&tmp, vecs.T())

	n := len(vals)
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(res.At(i, j)+res.At(j, i)))
		}
	}
	return out
}

// limitCross symmetrises a cross-covariance pair and bounds it by the
// Cauchy-Schwarz limit so the 2x2 sub-block stays positive semi-definite.
func limitCross(cov *types.Covariance6, ij, ji int, vi, vj float64) {
	v := 0.5 * (cov[ij] + cov[ji])
	bound := math.Sqrt(vi * vj)
	v = clamp(v, -bound, bound)
	cov[ij], cov[ji] = v, v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func finitePose(obj types.Detection) bool {
	p, q := obj.Pose.Position, obj.Pose.Orientation
	for _, v := range []float64{p.X, p.Y, p.Z, q.W, q.X, q.Y, q.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func finiteTwist(t types.Twist) bool {
	for _, v := range []float64{t.LinearX, t.LinearY, t.AngularZ} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
