package geom

import (
	"math"
	"sort"
)

// polygonEpsilon guards divisions and degenerate edges in clipping.
const polygonEpsilon = 1e-12

// Point2 is a point on the ground plane.
type Point2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func cross(o, a, b Point2) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// PolygonArea returns the unsigned area of a simple polygon.
func PolygonArea(pts []Point2) float64 {
	if len(pts) < 3 {
		return 0
	}
	var a float64
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(a) / 2
}

// Centroid returns the vertex mean of pts.
func Centroid(pts []Point2) Point2 {
	var c Point2
	if len(pts) == 0 {
		return c
	}
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(pts))
	return Point2{X: c.X / n, Y: c.Y / n}
}

// ConvexHull returns the counter-clockwise convex hull of pts using the
// monotone chain algorithm. Collinear points are dropped.
func ConvexHull(pts []Point2) []Point2 {
	if len(pts) < 3 {
		out := make([]Point2, len(pts))
		copy(out, pts)
		return out
	}
	sorted := make([]Point2, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	hull := make([]Point2, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// ClipConvex returns the intersection of two convex counter-clockwise
// polygons (Sutherland-Hodgman, clipping subject against each edge of clip).
func ClipConvex(subject, clip []Point2) []Point2 {
	if len(subject) < 3 || len(clip) < 3 {
		return nil
	}
	out := subject
	for i := range clip {
		if len(out) == 0 {
			return nil
		}
		a := clip[i]
		b := clip[(i+1)%len(clip)]
		in := out
		out = make([]Point2, 0, len(in)+2)
		for j := range in {
			cur := in[j]
			prev := in[(j+len(in)-1)%len(in)]
			curIn := cross(a, b, cur) >= -polygonEpsilon
			prevIn := cross(a, b, prev) >= -polygonEpsilon
			if curIn {
				if !prevIn {
					out = append(out, intersect(prev, cur, a, b))
				}
				out = append(out, cur)
			} else if prevIn {
				out = append(out, intersect(prev, cur, a, b))
			}
		}
	}
	return out
}

// intersect returns the intersection of segment p1→p2 with the infinite line a→b.
func intersect(p1, p2, a, b Point2) Point2 {
	d1 := cross(a, b, p1)
	d2 := cross(a, b, p2)
	den := d1 - d2
	if math.Abs(den) < polygonEpsilon {
		return p2
	}
	t := d1 / den
	return Point2{X: p1.X + t*(p2.X-p1.X), Y: p1.Y + t*(p2.Y-p1.Y)}
}

// IntersectionArea returns the overlap area of two footprints. Non-convex
// inputs are replaced by their convex hulls.
func IntersectionArea(a, b []Point2) float64 {
	ha := ConvexHull(a)
	hb := ConvexHull(b)
	return PolygonArea(ClipConvex(ha, hb))
}

// IoU2D returns the intersection-over-union of two ground footprints in [0, 1].
func IoU2D(a, b []Point2) float64 {
	areaA := PolygonArea(ConvexHull(a))
	areaB := PolygonArea(ConvexHull(b))
	if areaA < polygonEpsilon || areaB < polygonEpsilon {
		return 0
	}
	inter := IntersectionArea(a, b)
	union := areaA + areaB - inter
	if union < polygonEpsilon {
		return 0
	}
	return clamp01(inter / union)
}

// IoU3D extends IoU2D with vertical overlap. Each footprint is extruded from
// its centre height z with total height h.
func IoU3D(a []Point2, za, ha float64, b []Point2, zb, hb float64) float64 {
	areaA := PolygonArea(ConvexHull(a))
	areaB := PolygonArea(ConvexHull(b))
	if ha <= 0 || hb <= 0 {
		return IoU2D(a, b)
	}
	top := math.Min(za+ha/2, zb+hb/2)
	bottom := math.Max(za-ha/2, zb-hb/2)
	overlapH := math.Max(0, top-bottom)
	inter := IntersectionArea(a, b) * overlapH
	union := areaA*ha + areaB*hb - inter
	if union < polygonEpsilon {
		return 0
	}
	return clamp01(inter / union)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
