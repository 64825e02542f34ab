package uncertainty

import (
	"time"

	"github.com/banshee-data/objectfusion/internal/geom"
	"github.com/banshee-data/objectfusion/internal/types"
	"gonum.org/v1/gonum/mat"
)

// TransformProvider resolves the transform that maps coordinates expressed in
// source into target at the given time. ok is false when no transform is
// available for that time.
type TransformProvider interface {
	LookupTransform(source, target string, at time.Time) (geom.Transform, bool)
}

// TransformToWorld returns a copy of batch with every detection expressed in
// world. The input batch is never modified. ok is false when the frame
// transform is unavailable or degenerate.
func TransformToWorld(batch types.DetectionBatch, world string, provider TransformProvider) (types.DetectionBatch, bool) {
	out := batch.Clone()
	if batch.FrameID == world {
		return out, true
	}
	if provider == nil {
		return types.DetectionBatch{}, false
	}
	tf, ok := provider.LookupTransform(batch.FrameID, world, batch.Stamp)
	if !ok || !tf.Valid() {
		return types.DetectionBatch{}, false
	}

	rot := tf.Rotation.Matrix()
	for i := range out.Objects {
		obj := &out.Objects[i]
		obj.Pose = tf.ApplyPose(obj.Pose)
		obj.PoseCovariance = RotatePoseCovariance(obj.PoseCovariance, rot)
	}
	out.FrameID = world
	return out, true
}

// RotatePoseCovariance rotates the position block of a 6x6 pose covariance
// (and its cross terms with orientation) by the 3x3 row-major rotation r:
//
//	Σ' = J Σ Jᵀ,  J = diag(R, I₃)
//
// The orientation block is left untouched, so yaw variance carries over.
func RotatePoseCovariance(cov types.Covariance6, r [9]float64) types.Covariance6 {
	j := mat.NewDense(6, 6, nil)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			j.Set(row, col, r[row*3+col])
		}
		j.Set(row+3, row+3, 1)
	}
	sigma := mat.NewDense(6, 6, cov[:])

	var tmp, res mat.Dense
	tmp.Mul(j, sigma)
	res.Mul(&tmp, j.T())

	var out types.Covariance6
	for row := 0; row < 6; row++ {
		for col := 0; col < 6; col++ {
			out[row*6+col] = res.At(row, col)
		}
	}
	return out
}
