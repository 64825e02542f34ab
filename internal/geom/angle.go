package geom

import "math"

// NormalizeAngle wraps a to [-π, π).
func NormalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0
	}
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// AngleDiff returns the absolute difference between two headings in [0, π].
func AngleDiff(a, b float64) float64 {
	return math.Abs(NormalizeAngle(a - b))
}

// AxisDiff returns the difference between two undirected axes in [0, π/2],
// treating headings that differ by π as equal.
func AxisDiff(a, b float64) float64 {
	d := AngleDiff(a, b)
	if d > math.Pi/2 {
		d = math.Pi - d
	}
	return d
}
