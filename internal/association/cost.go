package association

import (
	"math"

	"github.com/banshee-data/objectfusion/internal/geom"
	"github.com/banshee-data/objectfusion/internal/types"
)

// Unassignable is the cost of a pair that must never be matched.
var Unassignable = math.Inf(1)

// Weights of the IoU and heading terms relative to the normalised distance.
const (
	iouWeight   = 0.25
	angleWeight = 0.25
)

// TrackView is the part of a track the cost function needs, predicted to the
// detection time.
type TrackView struct {
	ID    uint64
	Label types.ObjectClass
	Pose  geom.Pose
	Shape types.Shape
}

// CostMatrix is a dense row-major matrix with one row per track and one
// column per detection.
type CostMatrix struct {
	Rows, Cols int
	Data       []float64
}

// NewCostMatrix returns a rows×cols matrix filled with Unassignable.
func NewCostMatrix(rows, cols int) CostMatrix {
	m := CostMatrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
	for i := range m.Data {
		m.Data[i] = Unassignable
	}
	return m
}

func (m CostMatrix) At(row, col int) float64 { return m.Data[row*m.Cols+col] }

func (m CostMatrix) Set(row, col int, v float64) { m.Data[row*m.Cols+col] = v }

// Engine computes association costs from validated Matrices.
type Engine struct {
	m Matrices
}

// NewEngine validates m and returns an Engine.
func NewEngine(m Matrices) (*Engine, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &Engine{m: m}, nil
}

// CostMatrix scores every track against every detection.
func (e *Engine) CostMatrix(tracks []TrackView, dets []types.Detection) CostMatrix {
	out := NewCostMatrix(len(tracks), len(dets))
	// Footprints are shared across rows and columns; build them once.
	detFP := make([][]geom.Point2, len(dets))
	for j, d := range dets {
		detFP[j] = d.Footprint()
	}
	for i, tr := range tracks {
		trFP := tr.Shape.Outline(tr.Pose)
		for j, d := range dets {
			out.Set(i, j, e.cost(tr, trFP, d, detFP[j]))
		}
	}
	return out
}

// Cost scores a single pair. The result is Unassignable when any gate fails:
//   - the class pair is not assignable;
//   - planar distance exceeds max_dist;
//   - the detection footprint area is outside [min_area, max_area];
//   - the heading difference exceeds max_rad (only when max_rad < π and
//     the detection reports a heading);
//   - 3D IoU is below min_iou.
//
// Otherwise the cost is dist/max_dist + 0.25·(1−IoU) + 0.25·angle/π, or 0
// when the detection's track hint names this track.
func (e *Engine) Cost(tr TrackView, det types.Detection) float64 {
	return e.cost(tr, tr.Shape.Outline(tr.Pose), det, det.Footprint())
}

func (e *Engine) cost(tr TrackView, trFP []geom.Point2, det types.Detection, detFP []geom.Point2) float64 {
	dl := det.Label()
	if !tr.Label.Valid() || !dl.Valid() {
		return Unassignable
	}
	k := index(tr.Label, dl)
	if !e.m.CanAssign[k] {
		return Unassignable
	}

	maxDist := e.m.MaxDist[k]
	dist := det.Pose.Position.Sub(tr.Pose.Position).Norm2D()
	if dist > maxDist {
		return Unassignable
	}

	area := det.Shape.Area()
	if area < e.m.MinArea[k] || area > e.m.MaxArea[k] {
		return Unassignable
	}

	var angle float64
	switch det.Orientation {
	case types.OrientationAvailable:
		angle = geom.AngleDiff(tr.Pose.Yaw(), det.Pose.Yaw())
	case types.OrientationSignUnknown:
		angle = geom.AxisDiff(tr.Pose.Yaw(), det.Pose.Yaw())
	}
	if maxRad := e.m.MaxRad[k]; maxRad < math.Pi && det.Orientation != types.OrientationUnavailable && angle > maxRad {
		return Unassignable
	}

	iou := geom.IoU3D(trFP, tr.Pose.Position.Z, tr.Shape.Height, detFP, det.Pose.Position.Z, det.Shape.Height)
	if iou < e.m.MinIoU[k] {
		return Unassignable
	}

	if det.TrackHint != 0 && det.TrackHint == tr.ID {
		return 0
	}
	c := dist/maxDist + iouWeight*(1-iou) + angleWeight*angle/math.Pi
	if math.IsNaN(c) {
		return Unassignable
	}
	return c
}
