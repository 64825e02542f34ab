package model

import (
	"math"
	"time"

	"github.com/banshee-data/objectfusion/internal/geom"
	"github.com/banshee-data/objectfusion/internal/types"
	"gonum.org/v1/gonum/mat"
)

// Point-mass state indices.
const (
	pmX = iota
	pmY
	pmVX
	pmVY
	pmDim
)

// minHeadingSpeed is the speed above which a point mass without a measured
// heading faces along its velocity.
const minHeadingSpeed = 0.5

// pointMass is a constant velocity Kalman filter over [x, y, vx, vy] in the
// tracking frame. Heading is carried alongside the filter, not inside it.
type pointMass struct {
	common
	x      *mat.VecDense
	p      *mat.SymDense
	yaw    float64
	yawVar float64
}

func newPointMass(det types.Detection, at time.Time, params Params) pointMass {
	pm := pointMass{
		common: newCommon(det, at, params),
		yaw:    det.Pose.Yaw(),
		yawVar: det.PoseCovariance[types.CovYawYaw],
	}
	var vx, vy float64
	velVar := initialSpeedVariance
	if det.HasTwist {
		vx, vy = worldTwist(det)
		velVar = math.Max(det.TwistCovariance[types.CovXX], det.TwistCovariance[types.CovYY])
	}
	pm.x = mat.NewVecDense(pmDim, []float64{det.Pose.Position.X, det.Pose.Position.Y, vx, vy})
	pm.p = diagSym(det.PoseCovariance[types.CovXX], det.PoseCovariance[types.CovYY], velVar, velVar)
	pm.p.SetSym(pmX, pmY, det.PoseCovariance[types.CovXY])
	pm.finish(mat.VecDenseCopyOf(pm.x))
	return pm
}

func (pm *pointMass) predict(dt time.Duration) {
	substeps(pm.advance(dt), pm.params.MaxPredictDt, pm.step)
}

func (pm *pointMass) step(dt float64) {
	prev := mat.VecDenseCopyOf(pm.x)

	f := eye(pmDim)
	f.Set(pmX, pmVX, dt)
	f.Set(pmY, pmVY, dt)
	var next mat.VecDense
	next.MulVec(f, pm.x)
	pm.x = &next

	pp, pv, vv := whiteAccelQ(pm.params.ProcessNoiseAccel, dt)
	q := mat.NewSymDense(pmDim, nil)
	q.SetSym(pmX, pmX, pp)
	q.SetSym(pmY, pmY, pp)
	q.SetSym(pmX, pmVX, pv)
	q.SetSym(pmY, pmVY, pv)
	q.SetSym(pmVX, pmVX, vv)
	q.SetSym(pmVY, pmVY, vv)

	pm.p = propagate(pm.p, f, q)
	pm.finish(prev)
}

func (pm *pointMass) update(det types.Detection, at time.Time, smoothShape bool) {
	if d := at.Sub(pm.stamp); d > 0 {
		pm.predict(d)
	}
	prev := mat.VecDenseCopyOf(pm.x)

	m := 2
	if det.HasTwist {
		m = 4
	}
	h := mat.NewDense(m, pmDim, nil)
	r := mat.NewSymDense(m, nil)
	innov := mat.NewVecDense(m, nil)
	h.Set(0, pmX, 1)
	h.Set(1, pmY, 1)
	r.SetSym(0, 0, det.PoseCovariance[types.CovXX])
	r.SetSym(0, 1, det.PoseCovariance[types.CovXY])
	r.SetSym(1, 1, det.PoseCovariance[types.CovYY])
	innov.SetVec(0, det.Pose.Position.X-pm.x.AtVec(pmX))
	innov.SetVec(1, det.Pose.Position.Y-pm.x.AtVec(pmY))
	if det.HasTwist {
		vx, vy := worldTwist(det)
		h.Set(2, pmVX, 1)
		h.Set(3, pmVY, 1)
		r.SetSym(2, 2, det.TwistCovariance[types.CovXX])
		r.SetSym(3, 3, det.TwistCovariance[types.CovYY])
		innov.SetVec(2, vx-pm.x.AtVec(pmVX))
		innov.SetVec(3, vy-pm.x.AtVec(pmVY))
	}

	if x, p, ok := correct(pm.x, pm.p, h, r, innov); ok {
		pm.x, pm.p = x, p
	}
	pm.finish(prev)

	if yaw, ok := measuredYaw(det, pm.yaw); ok {
		pm.yaw = yaw
		pm.yawVar = det.PoseCovariance[types.CovYawYaw]
	} else if vx, vy := pm.x.AtVec(pmVX), pm.x.AtVec(pmVY); math.Hypot(vx, vy) > minHeadingSpeed {
		pm.yaw = math.Atan2(vy, vx)
	}
	pm.observe(det, smoothShape)
}

// finish rolls back to prev with a reset covariance on a non-finite result,
// then bounds speed and conditions the covariance.
func (pm *pointMass) finish(prev *mat.VecDense) {
	if !finite(pm.x, pm.p) {
		pm.x = prev
		pm.p = diagSym(
			pm.params.MaxCovarianceDiag, pm.params.MaxCovarianceDiag,
			initialSpeedVariance, initialSpeedVariance,
		)
	}
	vx, vy := pm.x.AtVec(pmVX), pm.x.AtVec(pmVY)
	if speed := math.Hypot(vx, vy); speed > pm.params.MaxSpeedMps && speed > 0 {
		k := pm.params.MaxSpeedMps / speed
		pm.x.SetVec(pmVX, vx*k)
		pm.x.SetVec(pmVY, vy*k)
	}
	condition(pm.p, pm.params.MinCovarianceDiag, pm.params.MaxCovarianceDiag)
}

func (pm *pointMass) clone() pointMass {
	c := *pm
	c.x = mat.VecDenseCopyOf(pm.x)
	c.p = mat.NewSymDense(pmDim, nil)
	c.p.CopySym(pm.p)
	c.shape = pm.shape.Clone()
	return c
}

func (pm *pointMass) stateAt(at time.Time) State {
	c := pm.clone()
	if d := at.Sub(c.stamp); d > 0 {
		c.predict(d)
	}
	vx, vy := c.x.AtVec(pmVX), c.x.AtVec(pmVY)
	return State{
		Stamp: c.stamp,
		Pose:  poseOf(c.x.AtVec(pmX), c.x.AtVec(pmY), c.z, geom.NormalizeAngle(c.yaw)),
		PositionCovariance: [4]float64{
			c.p.At(pmX, pmX), c.p.At(pmX, pmY), c.p.At(pmY, pmX), c.p.At(pmY, pmY),
		},
		YawVariance: c.yawVar,
		VelocityX:   vx,
		VelocityY:   vy,
		Speed:       math.Hypot(vx, vy),
		Shape:       c.shape.Clone(),
	}
}

// Pedestrian tracks pedestrians and two-wheelers as a point mass with a
// smoothed extent.
type Pedestrian struct {
	pointMass
}

func newPedestrian(det types.Detection, at time.Time, params Params) *Pedestrian {
	return &Pedestrian{pointMass: newPointMass(det, at, params)}
}

func (p *Pedestrian) Kind() Kind                               { return KindPedestrian }
func (p *Pedestrian) Predict(dt time.Duration)                 { p.predict(dt) }
func (p *Pedestrian) Update(det types.Detection, at time.Time) { p.update(det, at, true) }
func (p *Pedestrian) StateAt(at time.Time) State               { return p.stateAt(at) }

// Unknown tracks unclassified objects as a point mass. Its shape is the
// footprint of the latest measurement rather than a smoothed box.
type Unknown struct {
	pointMass
}

func newUnknown(det types.Detection, at time.Time, params Params) *Unknown {
	return &Unknown{pointMass: newPointMass(det, at, params)}
}

func (u *Unknown) Kind() Kind                               { return KindUnknown }
func (u *Unknown) Predict(dt time.Duration)                 { u.predict(dt) }
func (u *Unknown) Update(det types.Detection, at time.Time) { u.update(det, at, false) }
func (u *Unknown) StateAt(at time.Time) State               { return u.stateAt(at) }
