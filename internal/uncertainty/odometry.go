package uncertainty

import (
	"math"
	"time"

	"github.com/banshee-data/objectfusion/internal/config"
	"github.com/banshee-data/objectfusion/internal/geom"
	"github.com/banshee-data/objectfusion/internal/types"
	"gonum.org/v1/gonum/mat"
)

// Odometry is an ego pose and twist with their covariances. Twist is in the
// ego body frame.
type Odometry struct {
	Stamp           time.Time
	Pose            geom.Pose
	PoseCovariance  types.Covariance6
	Twist           types.Twist
	TwistCovariance types.Covariance6
}

// OdometryModel produces a modeled ego odometry when no measured odometry
// is wired in. The values are deliberately pessimistic.
type OdometryModel struct {
	TimeOffset    time.Duration
	Twist         [3]float64 // vx, vy, wz
	PoseVariance  [3]float64 // xx, yy, yawyaw
	TwistVariance [3]float64 // vx, vy, wz
}

// OdometryModelFromTuning builds an OdometryModel from a loaded TuningConfig.
func OdometryModelFromTuning(cfg *config.TuningConfig) OdometryModel {
	return OdometryModel{
		TimeOffset:    cfg.GetOdometryTimeOffset(),
		Twist:         cfg.GetOdometryTwist(),
		PoseVariance:  cfg.GetOdometryPoseCovariance(),
		TwistVariance: cfg.GetOdometryTwistCovariance(),
	}
}

// Modeled returns the odometry for an ego pose observed at measured.
func (m OdometryModel) Modeled(ego geom.Pose, measured time.Time) Odometry {
	odom := Odometry{
		Stamp: measured.Add(m.TimeOffset),
		Pose:  ego,
		Twist: types.Twist{LinearX: m.Twist[0], LinearY: m.Twist[1], AngularZ: m.Twist[2]},
	}
	odom.PoseCovariance[types.CovXX] = m.PoseVariance[0]
	odom.PoseCovariance[types.CovYY] = m.PoseVariance[1]
	odom.PoseCovariance[types.CovYawYaw] = m.PoseVariance[2]
	odom.TwistCovariance[types.CovXX] = m.TwistVariance[0]
	odom.TwistCovariance[types.CovYY] = m.TwistVariance[1]
	odom.TwistCovariance[types.CovYawYaw] = m.TwistVariance[2]
	return odom
}

// AddOdometryUncertainty inflates every detection's covariance in batch by
// the ego motion uncertainty in odom. Detections must already be expressed
// in the same frame as odom.Pose. Per detection at offset d = (dx, dy) from
// the ego, with J = [-dy, dx]ᵀ and dt the odometry time offset:
//
//	Σxy += R Σego Rᵀ + σ²yaw J Jᵀ + dt² (R Σtwist Rᵀ + σ²ω J Jᵀ)
//	σ²yaw(det) += σ²yaw + dt² σ²ω
func AddOdometryUncertainty(odom Odometry, batch *types.DetectionBatch) {
	if batch == nil || len(batch.Objects) == 0 {
		return
	}
	yaw := odom.Pose.Yaw()
	c, s := math.Cos(yaw), math.Sin(yaw)
	rot := mat.NewDense(2, 2, []float64{c, -s, s, c})

	egoPos := rotate2(rot, block2(odom.PoseCovariance))
	egoTwist := rotate2(rot, block2(odom.TwistCovariance))
	yawVar := sanitizeVariance(odom.PoseCovariance[types.CovYawYaw])
	yawRateVar := sanitizeVariance(odom.TwistCovariance[types.CovYawYaw])

	dt := math.Abs(odom.Stamp.Sub(batch.Stamp).Seconds())
	dt2 := dt * dt

	base := mat.NewSymDense(2, nil)
	base.CopySym(egoPos)
	twistTerm := mat.NewSymDense(2, nil)
	twistTerm.ScaleSym(dt2, egoTwist)
	base.AddSym(base, twistTerm)

	for i := range batch.Objects {
		obj := &batch.Objects[i]
		dx := obj.Pose.Position.X - odom.Pose.Position.X
		dy := obj.Pose.Position.Y - odom.Pose.Position.Y
		lever := mat.NewVecDense(2, []float64{-dy, dx})

		add := mat.NewSymDense(2, nil)
		add.CopySym(base)
		add.SymRankOne(add, yawVar+dt2*yawRateVar, lever)

		obj.PoseCovariance[types.CovXX] += add.At(0, 0)
		obj.PoseCovariance[types.CovXY] += add.At(0, 1)
		obj.PoseCovariance[types.CovYX] += add.At(1, 0)
		obj.PoseCovariance[types.CovYY] += add.At(1, 1)
		obj.PoseCovariance[types.CovYawYaw] += yawVar + dt2*yawRateVar
	}
}

// block2 extracts the symmetric x/y block of a 6x6 covariance.
func block2(cov types.Covariance6) *mat.SymDense {
	off := 0.5 * (cov[types.CovXY] + cov[types.CovYX])
	return mat.NewSymDense(2, []float64{
		sanitizeVariance(cov[types.CovXX]), sanitizeCross(off),
		sanitizeCross(off), sanitizeVariance(cov[types.CovYY]),
	})
}

// rotate2 returns R Σ Rᵀ.
func rotate2(r mat.Matrix, sigma mat.Symmetric) *mat.SymDense {
	var tmp, res mat.Dense
	tmp.Mul(r, sigma)
	res.Mul(&tmp, r.T())
	out := mat.NewSymDense(2, nil)
	for i := 0; i < 2; i++ {
		for j := i; j < 2; j++ {
			out.SetSym(i, j, 0.5*(res.At(i, j)+res.At(j, i)))
		}
	}
	return out
}

func sanitizeVariance(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func sanitizeCross(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
