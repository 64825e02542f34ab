// Package types holds the data model exchanged between the tracking engine
// components and its external collaborators: detections, detection batches,
// and published track snapshots.
package types

import (
	"time"

	"github.com/banshee-data/objectfusion/internal/geom"
)

// Covariance index constants into a row-major 6x6 pose or twist covariance
// over (x, y, z, roll, pitch, yaw).
const (
	CovXX     = 0
	CovXY     = 1
	CovXYaw   = 5
	CovYX     = 6
	CovYY     = 7
	CovYYaw   = 11
	CovZZ     = 14
	CovYawX   = 30
	CovYawY   = 31
	CovYawYaw = 35
)

// Covariance6 is a row-major 6x6 covariance matrix.
type Covariance6 [36]float64

// OrientationAvailability tells the estimators how far the detector's yaw can be trusted.
type OrientationAvailability int

const (
	OrientationUnavailable OrientationAvailability = iota
	OrientationSignUnknown                         // axis known, direction ambiguous by π
	OrientationAvailable
)

// Twist is a body-frame velocity: forward, lateral, and yaw rate.
type Twist struct {
	LinearX  float64 `json:"linear_x"`
	LinearY  float64 `json:"linear_y"`
	AngularZ float64 `json:"angular_z"`
}

// Detection is one object observed by one sensor channel at one instant.
type Detection struct {
	Classification       ClassProbabilities      `json:"classification"`
	Pose                 geom.Pose               `json:"pose"`
	PoseCovariance       Covariance6             `json:"pose_covariance"`
	Orientation          OrientationAvailability `json:"orientation"`
	Twist                Twist                   `json:"twist"`
	TwistCovariance      Covariance6             `json:"twist_covariance"`
	HasTwist             bool                    `json:"has_twist"`
	Shape                Shape                   `json:"shape"`
	ExistenceProbability float64                 `json:"existence_probability"`

	// TrackHint is the ID of a track the source believes this detection
	// belongs to, or zero.
	TrackHint uint64 `json:"track_hint,omitempty"`
}

// Label returns the most probable class of the detection.
func (d Detection) Label() ObjectClass { return d.Classification.Label() }

// Footprint returns the ground outline of the detection.
func (d Detection) Footprint() []geom.Point2 { return d.Shape.Outline(d.Pose) }

// Clone deep-copies the detection.
func (d Detection) Clone() Detection {
	out := d
	out.Shape = d.Shape.Clone()
	return out
}

// DetectionBatch is the set of detections one channel produced for one
// measurement instant, expressed in FrameID.
type DetectionBatch struct {
	Stamp   time.Time   `json:"stamp"`
	Channel string      `json:"channel"`
	FrameID string      `json:"frame_id"`
	Objects []Detection `json:"objects"`
}

// Clone deep-copies the batch so that the copy shares no memory with b.
func (b DetectionBatch) Clone() DetectionBatch {
	out := b
	if b.Objects != nil {
		out.Objects = make([]Detection, len(b.Objects))
		for i, d := range b.Objects {
			out.Objects[i] = d.Clone()
		}
	}
	return out
}

// Empty reports whether the batch carries no detections.
func (b DetectionBatch) Empty() bool { return len(b.Objects) == 0 }
