package model

import (
	"math"
	"time"

	"github.com/banshee-data/objectfusion/internal/geom"
	"github.com/banshee-data/objectfusion/internal/types"
	"gonum.org/v1/gonum/mat"
)

// Vehicle state indices.
const (
	vehX = iota
	vehY
	vehYaw
	vehV
	vehW
	vehDim
)

// Initial uncertainty for quantities a detection does not measure.
const (
	initialSpeedVariance   = 25.0 // (5 m/s)²
	initialYawRateVariance = 0.1  // (rad/s)²
	minTurnRate            = 1e-6 // below this the straight-line motion model is used
)

// Vehicle is a constant turn rate and velocity EKF over [x, y, yaw, v, ω].
type Vehicle struct {
	common
	x *mat.VecDense
	p *mat.SymDense
}

func newVehicle(det types.Detection, at time.Time, params Params) *Vehicle {
	v := &Vehicle{common: newCommon(det, at, params)}
	var speed, yawRate float64
	speedVar, yawRateVar := initialSpeedVariance, initialYawRateVariance
	if det.HasTwist {
		speed, yawRate = det.Twist.LinearX, det.Twist.AngularZ
		speedVar = det.TwistCovariance[types.CovXX]
		yawRateVar = det.TwistCovariance[types.CovYawYaw]
	}
	v.x = mat.NewVecDense(vehDim, []float64{
		det.Pose.Position.X, det.Pose.Position.Y, det.Pose.Yaw(), speed, yawRate,
	})
	v.p = diagSym(
		det.PoseCovariance[types.CovXX], det.PoseCovariance[types.CovYY],
		det.PoseCovariance[types.CovYawYaw], speedVar, yawRateVar,
	)
	v.p.SetSym(vehX, vehY, det.PoseCovariance[types.CovXY])
	v.clampKinematics()
	condition(v.p, params.MinCovarianceDiag, params.MaxCovarianceDiag)
	return v
}

func (v *Vehicle) Kind() Kind { return KindVehicle }

// Predict advances the state by dt in sub-steps of at most MaxPredictDt.
func (v *Vehicle) Predict(dt time.Duration) {
	substeps(v.advance(dt), v.params.MaxPredictDt, v.step)
}

func (v *Vehicle) step(dt float64) {
	prev := mat.VecDenseCopyOf(v.x)

	x, y := v.x.AtVec(vehX), v.x.AtVec(vehY)
	yaw, speed, w := v.x.AtVec(vehYaw), v.x.AtVec(vehV), v.x.AtVec(vehW)
	c, s := math.Cos(yaw), math.Sin(yaw)

	if math.Abs(w) < minTurnRate {
		x += speed * c * dt
		y += speed * s * dt
	} else {
		yawNext := yaw + w*dt
		x += speed / w * (math.Sin(yawNext) - s)
		y += speed / w * (c - math.Cos(yawNext))
	}
	v.x.SetVec(vehX, x)
	v.x.SetVec(vehY, y)
	v.x.SetVec(vehYaw, geom.NormalizeAngle(yaw+w*dt))

	// Jacobian of the straight-line motion over a short step.
	f := eye(vehDim)
	f.Set(vehX, vehYaw, -speed*s*dt)
	f.Set(vehX, vehV, c*dt)
	f.Set(vehY, vehYaw, speed*c*dt)
	f.Set(vehY, vehV, s*dt)
	f.Set(vehYaw, vehW, dt)

	pp, pv, vv := whiteAccelQ(v.params.ProcessNoiseVehicleAcc, dt)
	yy, yw, ww := whiteAccelQ(v.params.ProcessNoiseYawAccel, dt)
	q := mat.NewSymDense(vehDim, nil)
	// Longitudinal acceleration noise projected onto x/y.
	q.SetSym(vehX, vehX, pp*c*c)
	q.SetSym(vehX, vehY, pp*c*s)
	q.SetSym(vehY, vehY, pp*s*s)
	q.SetSym(vehX, vehV, pv*c)
	q.SetSym(vehY, vehV, pv*s)
	q.SetSym(vehV, vehV, vv)
	q.SetSym(vehYaw, vehYaw, yy)
	q.SetSym(vehYaw, vehW, yw)
	q.SetSym(vehW, vehW, ww)

	v.p = propagate(v.p, f, q)
	v.finish(prev)
}

// Update fuses position, heading (when the detection has one) and speed
// (when the detection carries a twist).
func (v *Vehicle) Update(det types.Detection, at time.Time) {
	if d := at.Sub(v.stamp); d > 0 {
		v.Predict(d)
	}
	prev := mat.VecDenseCopyOf(v.x)

	rows := []int{vehX, vehY}
	innov := []float64{
		det.Pose.Position.X - v.x.AtVec(vehX),
		det.Pose.Position.Y - v.x.AtVec(vehY),
	}
	noise := []float64{det.PoseCovariance[types.CovXX], det.PoseCovariance[types.CovYY]}
	if yaw, ok := measuredYaw(det, v.x.AtVec(vehYaw)); ok {
		rows = append(rows, vehYaw)
		innov = append(innov, geom.NormalizeAngle(yaw-v.x.AtVec(vehYaw)))
		noise = append(noise, det.PoseCovariance[types.CovYawYaw])
	}
	if det.HasTwist {
		rows = append(rows, vehV)
		innov = append(innov, det.Twist.LinearX-v.x.AtVec(vehV))
		noise = append(noise, det.TwistCovariance[types.CovXX])
	}

	m := len(rows)
	h := mat.NewDense(m, vehDim, nil)
	for i, r := range rows {
		h.Set(i, r, 1)
	}
	r := diagSym(noise...)
	r.SetSym(0, 1, det.PoseCovariance[types.CovXY])

	if x, p, ok := correct(v.x, v.p, h, r, mat.NewVecDense(m, innov)); ok {
		v.x, v.p = x, p
	}
	v.x.SetVec(vehYaw, geom.NormalizeAngle(v.x.AtVec(vehYaw)))
	v.finish(prev)
	v.observe(det, true)
}

// finish applies the post-step hygiene shared by predict and update.
// A non-finite result rolls the state back to prev with a reset covariance.
func (v *Vehicle) finish(prev *mat.VecDense) {
	if !finite(v.x, v.p) {
		v.x = prev
		v.p = diagSym(
			v.params.MaxCovarianceDiag, v.params.MaxCovarianceDiag,
			math.Pi*math.Pi, initialSpeedVariance, initialYawRateVariance,
		)
	}
	v.clampKinematics()
	condition(v.p, v.params.MinCovarianceDiag, v.params.MaxCovarianceDiag)
}

func (v *Vehicle) clampKinematics() {
	v.x.SetVec(vehV, clamp(v.x.AtVec(vehV), -v.params.MaxSpeedMps, v.params.MaxSpeedMps))
	v.x.SetVec(vehW, clamp(v.x.AtVec(vehW), -v.params.MaxYawRate, v.params.MaxYawRate))
}

func (v *Vehicle) copy() *Vehicle {
	c := &Vehicle{common: v.common, x: mat.VecDenseCopyOf(v.x), p: mat.NewSymDense(vehDim, nil)}
	c.p.CopySym(v.p)
	c.shape = v.shape.Clone()
	return c
}

func (v *Vehicle) StateAt(at time.Time) State {
	c := v.copy()
	if d := at.Sub(c.stamp); d > 0 {
		c.Predict(d)
	}
	return c.state()
}

func (v *Vehicle) state() State {
	yaw, speed := v.x.AtVec(vehYaw), v.x.AtVec(vehV)
	return State{
		Stamp: v.stamp,
		Pose:  poseOf(v.x.AtVec(vehX), v.x.AtVec(vehY), v.z, yaw),
		PositionCovariance: [4]float64{
			v.p.At(vehX, vehX), v.p.At(vehX, vehY), v.p.At(vehY, vehX), v.p.At(vehY, vehY),
		},
		YawVariance: v.p.At(vehYaw, vehYaw),
		VelocityX:   speed * math.Cos(yaw),
		VelocityY:   speed * math.Sin(yaw),
		Speed:       math.Abs(speed),
		YawRate:     v.x.AtVec(vehW),
		Shape:       v.shape.Clone(),
	}
}
