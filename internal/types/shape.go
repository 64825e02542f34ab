package types

import (
	"math"

	"github.com/banshee-data/objectfusion/internal/geom"
)

// ShapeType selects how Shape dimensions are interpreted.
type ShapeType string

const (
	ShapeBoundingBox ShapeType = "bounding_box"
	ShapeCylinder    ShapeType = "cylinder"
	ShapePolygon     ShapeType = "polygon"
)

// Shape describes the extent of an object in its own body frame.
//
// For ShapeBoundingBox, Length is along the heading and Width across it.
// For ShapeCylinder, Length holds the diameter and Width is ignored.
// For ShapePolygon, Footprint holds the body-frame outline (counter-clockwise).
type Shape struct {
	Type      ShapeType     `json:"type"`
	Length    float64       `json:"length"`
	Width     float64       `json:"width"`
	Height    float64       `json:"height"`
	Footprint []geom.Point2 `json:"footprint,omitempty"`
}

// Box returns a bounding-box shape.
func Box(length, width, height float64) Shape {
	return Shape{Type: ShapeBoundingBox, Length: length, Width: width, Height: height}
}

// Cylinder returns a cylinder shape.
func Cylinder(diameter, height float64) Shape {
	return Shape{Type: ShapeCylinder, Length: diameter, Width: diameter, Height: height}
}

// Area returns the footprint area in m².
func (s Shape) Area() float64 {
	switch s.Type {
	case ShapeCylinder:
		r := s.Length / 2
		return math.Pi * r * r
	case ShapePolygon:
		return geom.PolygonArea(s.Footprint)
	default:
		return s.Length * s.Width
	}
}

// Clone deep-copies the footprint.
func (s Shape) Clone() Shape {
	out := s
	if len(s.Footprint) > 0 {
		out.Footprint = make([]geom.Point2, len(s.Footprint))
		copy(out.Footprint, s.Footprint)
	}
	return out
}

// Outline returns the world-frame ground outline of the shape placed at
// pose. Cylinders are approximated by a 12-gon.
func (s Shape) Outline(pose geom.Pose) []geom.Point2 {
	var local []geom.Point2
	switch s.Type {
	case ShapeCylinder:
		const segments = 12
		r := s.Length / 2
		local = make([]geom.Point2, segments)
		for i := range local {
			a := 2 * math.Pi * float64(i) / segments
			local[i] = geom.Point2{X: r * math.Cos(a), Y: r * math.Sin(a)}
		}
	case ShapePolygon:
		local = s.Footprint
	default:
		hl, hw := s.Length/2, s.Width/2
		local = []geom.Point2{{X: hl, Y: hw}, {X: -hl, Y: hw}, {X: -hl, Y: -hw}, {X: hl, Y: -hw}}
	}
	yaw := pose.Orientation.Yaw()
	c, sn := math.Cos(yaw), math.Sin(yaw)
	out := make([]geom.Point2, len(local))
	for i, p := range local {
		out[i] = geom.Point2{
			X: pose.Position.X + c*p.X - sn*p.Y,
			Y: pose.Position.Y + sn*p.X + c*p.Y,
		}
	}
	return out
}
