// Package source decodes detection batches from external producers: JSON
// lines over a serial port or stdin, UDP datagrams, and PCAP captures of
// those datagrams.
package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/objectfusion/internal/geom"
	"github.com/banshee-data/objectfusion/internal/types"
)

// ErrMalformed marks input that could not be decoded into a batch.
var ErrMalformed = errors.New("malformed detection batch")

// WirePose is a ground pose with optional height.
type WirePose struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z,omitempty"`
	Yaw float64 `json:"yaw"`
}

// WireShape mirrors types.Shape with a flat footprint list.
type WireShape struct {
	Type      string       `json:"type,omitempty"` // bounding_box (default), cylinder, polygon
	Length    float64      `json:"length"`
	Width     float64      `json:"width,omitempty"`
	Height    float64      `json:"height"`
	Footprint [][2]float64 `json:"footprint,omitempty"`
}

// WireTwist is a body-frame velocity with diagonal variances.
type WireTwist struct {
	VX  float64    `json:"vx"`
	VY  float64    `json:"vy,omitempty"`
	WZ  float64    `json:"wz,omitempty"`
	Var [3]float64 `json:"var,omitempty"` // vx, vy, wz
}

// WireDetection is one object as producers send it.
type WireDetection struct {
	// Class is a single label; Classes a probability per label. Classes
	// wins when both are set.
	Class       string             `json:"class,omitempty"`
	Classes     map[string]float64 `json:"classes,omitempty"`
	Pose        WirePose           `json:"pose"`
	Orientation string             `json:"orientation,omitempty"` // available (default), sign_unknown, none
	// PositionCov is the row-major x/y covariance; YawVar the heading variance.
	PositionCov [4]float64 `json:"position_cov,omitempty"`
	YawVar      float64    `json:"yaw_var,omitempty"`
	Shape       WireShape  `json:"shape"`
	Twist       *WireTwist `json:"twist,omitempty"`
	Existence   float64    `json:"existence,omitempty"`
	TrackHint   uint64     `json:"track_hint,omitempty"`
}

// WireBatch is the JSON document carried by every line or datagram.
type WireBatch struct {
	Channel string          `json:"channel,omitempty"`
	Stamp   time.Time       `json:"stamp"`
	FrameID string          `json:"frame_id"`
	Ego     *WirePose       `json:"ego,omitempty"` // ego pose in the world frame at Stamp
	Objects []WireDetection `json:"objects"`
}

// Decode parses one wire document.
func Decode(data []byte) (WireBatch, error) {
	var w WireBatch
	if err := json.Unmarshal(data, &w); err != nil {
		return WireBatch{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if w.Stamp.IsZero() {
		return WireBatch{}, fmt.Errorf("%w: missing stamp", ErrMalformed)
	}
	if w.FrameID == "" {
		return WireBatch{}, fmt.Errorf("%w: missing frame_id", ErrMalformed)
	}
	return w, nil
}

// EgoTransform returns the ego → world transform carried by the batch.
func (w WireBatch) EgoTransform() (geom.Transform, bool) {
	if w.Ego == nil {
		return geom.Transform{}, false
	}
	return geom.TransformFromPose(w.Ego.pose()), true
}

func (p WirePose) pose() geom.Pose {
	out := geom.PoseXYYaw(p.X, p.Y, p.Yaw)
	out.Position.Z = p.Z
	return out
}

// Batch converts the wire document into a DetectionBatch. Unknown class
// names, shape types and orientation values are errors.
func (w WireBatch) Batch() (types.DetectionBatch, error) {
	out := types.DetectionBatch{
		Stamp:   w.Stamp,
		Channel: w.Channel,
		FrameID: w.FrameID,
		Objects: make([]types.Detection, 0, len(w.Objects)),
	}
	for i, wd := range w.Objects {
		d, err := wd.detection()
		if err != nil {
			return types.DetectionBatch{}, fmt.Errorf("%w: object %d: %w", ErrMalformed, i, err)
		}
		out.Objects = append(out.Objects, d)
	}
	return out, nil
}

func (wd WireDetection) detection() (types.Detection, error) {
	d := types.Detection{
		Pose:                 wd.Pose.pose(),
		ExistenceProbability: wd.Existence,
		TrackHint:            wd.TrackHint,
	}

	switch {
	case len(wd.Classes) > 0:
		for name, p := range wd.Classes {
			c, err := types.ParseObjectClass(name)
			if err != nil {
				return d, err
			}
			d.Classification[c] += p
		}
	case wd.Class != "":
		c, err := types.ParseObjectClass(wd.Class)
		if err != nil {
			return d, err
		}
		d.Classification = types.Certain(c)
	default:
		d.Classification = types.Certain(types.ClassUnknown)
	}

	switch strings.ToLower(wd.Orientation) {
	case "", "available":
		d.Orientation = types.OrientationAvailable
	case "sign_unknown":
		d.Orientation = types.OrientationSignUnknown
	case "none", "unavailable":
		d.Orientation = types.OrientationUnavailable
	default:
		return d, fmt.Errorf("unknown orientation %q", wd.Orientation)
	}

	d.PoseCovariance[types.CovXX] = wd.PositionCov[0]
	d.PoseCovariance[types.CovXY] = wd.PositionCov[1]
	d.PoseCovariance[types.CovYX] = wd.PositionCov[2]
	d.PoseCovariance[types.CovYY] = wd.PositionCov[3]
	d.PoseCovariance[types.CovYawYaw] = wd.YawVar

	shape, err := wd.Shape.shape()
	if err != nil {
		return d, err
	}
	d.Shape = shape

	if wd.Twist != nil {
		d.HasTwist = true
		d.Twist = types.Twist{LinearX: wd.Twist.VX, LinearY: wd.Twist.VY, AngularZ: wd.Twist.WZ}
		d.TwistCovariance[types.CovXX] = wd.Twist.Var[0]
		d.TwistCovariance[types.CovYY] = wd.Twist.Var[1]
		d.TwistCovariance[types.CovYawYaw] = wd.Twist.Var[2]
	}
	return d, nil
}

func (ws WireShape) shape() (types.Shape, error) {
	switch strings.ToLower(ws.Type) {
	case "", string(types.ShapeBoundingBox):
		return types.Box(ws.Length, ws.Width, ws.Height), nil
	case string(types.ShapeCylinder):
		return types.Cylinder(ws.Length, ws.Height), nil
	case string(types.ShapePolygon):
		if len(ws.Footprint) < 3 {
			return types.Shape{}, fmt.Errorf("polygon needs at least 3 vertices, got %d", len(ws.Footprint))
		}
		s := types.Shape{Type: types.ShapePolygon, Height: ws.Height}
		for _, p := range ws.Footprint {
			s.Footprint = append(s.Footprint, geom.Point2{X: p[0], Y: p[1]})
		}
		return s, nil
	}
	return types.Shape{}, fmt.Errorf("unknown shape type %q", ws.Type)
}
