package model

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/objectfusion/internal/config"
	"github.com/banshee-data/objectfusion/internal/geom"
	"github.com/banshee-data/objectfusion/internal/types"
)

// Existence probability bounds. The recursion never reaches 0 or 1 so it can
// always move in both directions.
const (
	existenceFloor   = 1e-3
	existenceCeiling = config.MaxExistenceProbability
)

// State is a point-in-time view of an estimator, in the tracking frame.
type State struct {
	Stamp              time.Time
	Pose               geom.Pose
	PositionCovariance [4]float64 // xx, xy, yx, yy
	YawVariance        float64
	VelocityX          float64 // world frame
	VelocityY          float64 // world frame
	Speed              float64
	YawRate            float64
	Shape              types.Shape
}

// Estimator is the capability shared by every estimator variant. The set of
// implementations is closed to this package.
type Estimator interface {
	// Kind reports the variant.
	Kind() Kind
	// Stamp is the time the internal state refers to.
	Stamp() time.Time
	// Predict advances state and covariance by dt.
	Predict(dt time.Duration)
	// Update fuses det, measured at at, into the state. The state is first
	// predicted forward to at when it lags behind.
	Update(det types.Detection, at time.Time)
	// PredictExistence decays the existence probability over dt.
	PredictExistence(dt time.Duration)
	// StateAt extrapolates a copy of the state to at. The estimator itself
	// is not modified. Times before Stamp return the current state.
	StateAt(at time.Time) State
	Existence() float64
	Classification() types.ClassProbabilities

	sealed()
}

// New seeds an estimator of the given kind from a detection.
func New(kind Kind, det types.Detection, at time.Time, p Params) (Estimator, error) {
	switch kind {
	case KindVehicle:
		return newVehicle(det, at, p), nil
	case KindPedestrian:
		return newPedestrian(det, at, p), nil
	case KindUnknown:
		return newUnknown(det, at, p), nil
	case KindPassThrough:
		return newPassThrough(det, at, p), nil
	}
	return nil, fmt.Errorf("unsupported estimator kind %q", kind)
}

// common carries what every variant tracks besides its kinematic state.
type common struct {
	params    Params
	stamp     time.Time
	existence float64
	class     types.ClassProbabilities
	shape     types.Shape
	z         float64 // height of the object centre
}

func newCommon(det types.Detection, at time.Time, p Params) common {
	e := det.ExistenceProbability
	if e <= 0 {
		e = p.Existence.Initial
	}
	return common{
		params:    p,
		stamp:     at,
		existence: clampExistence(e),
		class:     det.Classification.Normalized(),
		shape:     det.Shape.Clone(),
		z:         det.Pose.Position.Z,
	}
}

func (c *common) sealed() {}

func (c *common) Stamp() time.Time { return c.stamp }

func (c *common) Existence() float64 { return c.existence }

func (c *common) Classification() types.ClassProbabilities { return c.class }

// PredictExistence applies exponential decay with the configured half-life.
func (c *common) PredictExistence(dt time.Duration) {
	hl := c.params.Existence.HalfLife
	if dt <= 0 || hl <= 0 {
		return
	}
	c.existence = clampExistence(c.existence * math.Exp2(-dt.Seconds()/hl.Seconds()))
}

// observe applies the measurement-independent part of an update: existence,
// class and extent. smoothShape selects an EMA of the extent; otherwise the
// latest measured shape replaces the stored one.
func (c *common) observe(det types.Detection, smoothShape bool) {
	pd := c.params.Existence.DetectionProbability
	pfa := c.params.Existence.FalseAlarmProbability
	p := c.existence
	if den := pd*p + pfa*(1-p); den > 0 {
		c.existence = clampExistence(pd * p / den)
	}

	a := clamp(c.params.ClassSmoothingAlpha, 0, 1)
	measured := det.Classification.Normalized()
	var mixed types.ClassProbabilities
	for i := range mixed {
		mixed[i] = (1-a)*c.class[i] + a*measured[i]
	}
	c.class = mixed.Normalized()

	c.z = det.Pose.Position.Z
	if !smoothShape || det.Shape.Type != c.shape.Type || c.shape.Type == types.ShapePolygon {
		c.shape = det.Shape.Clone()
		return
	}
	b := clamp(c.params.ShapeSmoothingAlpha, 0, 1)
	c.shape.Length = (1-b)*c.shape.Length + b*det.Shape.Length
	c.shape.Width = (1-b)*c.shape.Width + b*det.Shape.Width
	c.shape.Height = (1-b)*c.shape.Height + b*det.Shape.Height
}

// advance moves the stamp forward by dt and returns dt in seconds.
func (c *common) advance(dt time.Duration) float64 {
	if dt <= 0 {
		return 0
	}
	c.stamp = c.stamp.Add(dt)
	return dt.Seconds()
}

func clampExistence(p float64) float64 {
	if math.IsNaN(p) {
		return existenceFloor
	}
	return clamp(p, existenceFloor, existenceCeiling)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// measuredYaw resolves the heading a detection reports, relative to the
// current estimate. ok is false when the detection carries no heading. A
// sign-ambiguous heading is flipped onto the side closest to current.
func measuredYaw(det types.Detection, current float64) (float64, bool) {
	yaw := det.Pose.Yaw()
	switch det.Orientation {
	case types.OrientationUnavailable:
		return 0, false
	case types.OrientationSignUnknown:
		if geom.AngleDiff(yaw, current) > math.Pi/2 {
			yaw = geom.NormalizeAngle(yaw + math.Pi)
		}
	}
	return yaw, true
}

// worldTwist rotates a detection's body-frame twist into the tracking frame.
func worldTwist(det types.Detection) (vx, vy float64) {
	yaw := det.Pose.Yaw()
	c, s := math.Cos(yaw), math.Sin(yaw)
	return c*det.Twist.LinearX - s*det.Twist.LinearY, s*det.Twist.LinearX + c*det.Twist.LinearY
}

// poseOf builds a ground pose at height z.
func poseOf(x, y, z, yaw float64) geom.Pose {
	p := geom.PoseXYYaw(x, y, yaw)
	p.Position.Z = z
	return p
}
