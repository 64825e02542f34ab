package model

import (
	"math"
	"time"

	"github.com/banshee-data/objectfusion/internal/types"
)

// PassThrough republishes the latest measurement. Between measurements the
// pose is extrapolated by the measured twist and the position variance grows
// with the point-mass process noise.
type PassThrough struct {
	common
	last    types.Detection
	vx, vy  float64
	yawRate float64
}

func newPassThrough(det types.Detection, at time.Time, params Params) *PassThrough {
	pt := &PassThrough{common: newCommon(det, at, params)}
	pt.take(det)
	return pt
}

func (pt *PassThrough) take(det types.Detection) {
	pt.last = det.Clone()
	pt.vx, pt.vy, pt.yawRate = 0, 0, 0
	if det.HasTwist {
		pt.vx, pt.vy = worldTwist(det)
		pt.yawRate = det.Twist.AngularZ
	}
}

func (pt *PassThrough) Kind() Kind { return KindPassThrough }

func (pt *PassThrough) Predict(dt time.Duration) {
	sec := pt.advance(dt)
	if sec <= 0 {
		return
	}
	pos := &pt.last.Pose.Position
	pos.X += pt.vx * sec
	pos.Y += pt.vy * sec
	pp, _, _ := whiteAccelQ(pt.params.ProcessNoiseAccel, sec)
	cov := &pt.last.PoseCovariance
	cov[types.CovXX] = math.Min(cov[types.CovXX]+pp, pt.params.MaxCovarianceDiag)
	cov[types.CovYY] = math.Min(cov[types.CovYY]+pp, pt.params.MaxCovarianceDiag)
}

// Update replaces the state with the measurement.
func (pt *PassThrough) Update(det types.Detection, at time.Time) {
	if at.After(pt.stamp) {
		pt.stamp = at
	}
	pt.take(det)
	pt.observe(det, false)
}

func (pt *PassThrough) StateAt(at time.Time) State {
	c := *pt
	c.last = pt.last.Clone()
	c.shape = pt.shape.Clone()
	if d := at.Sub(c.stamp); d > 0 {
		c.Predict(d)
	}
	cov := c.last.PoseCovariance
	return State{
		Stamp: c.stamp,
		Pose:  c.last.Pose,
		PositionCovariance: [4]float64{
			cov[types.CovXX], cov[types.CovXY], cov[types.CovYX], cov[types.CovYY],
		},
		YawVariance: cov[types.CovYawYaw],
		VelocityX:   c.vx,
		VelocityY:   c.vy,
		Speed:       math.Hypot(c.vx, c.vy),
		YawRate:     c.yawRate,
		Shape:       c.shape.Clone(),
	}
}
