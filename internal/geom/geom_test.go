package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(cx, cy, half float64) []Point2 {
	return []Point2{
		{cx + half, cy + half}, {cx - half, cy + half},
		{cx - half, cy - half}, {cx + half, cy - half},
	}
}

func TestNormalizeAngle(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi / 2, math.Pi / 2},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{4 * math.Pi, 0},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalizeAngle(tt.in), 1e-9, "in=%v", tt.in)
	}
	assert.InDelta(t, 0.0, AxisDiff(0, math.Pi), 1e-9)
	assert.InDelta(t, math.Pi/2, AngleDiff(math.Pi/4, -math.Pi/4), 1e-9)
}

func TestQuaternionYawRoundTrip(t *testing.T) {
	t.Parallel()
	for _, yaw := range []float64{-3, -1, 0, 0.5, 2.9} {
		q := QuaternionFromYaw(yaw)
		assert.InDelta(t, yaw, q.Yaw(), 1e-9)
		assert.InDelta(t, yaw, QuaternionFromRPY(0, 0, yaw).Yaw(), 1e-9)
	}
	q := QuaternionFromYaw(1).Mul(QuaternionFromYaw(0.5))
	assert.InDelta(t, 1.5, q.Yaw(), 1e-9)
}

func TestTransformComposeInverse(t *testing.T) {
	t.Parallel()
	tf := Transform{Translation: Vec3{X: 10, Y: -2, Z: 1}, Rotation: QuaternionFromYaw(math.Pi / 2)}
	p := Vec3{X: 1, Y: 0, Z: 0}

	got := tf.ApplyPoint(p)
	assert.InDelta(t, 10.0, got.X, 1e-9)
	assert.InDelta(t, -1.0, got.Y, 1e-9)

	back := tf.Inverse().ApplyPoint(got)
	assert.InDelta(t, p.X, back.X, 1e-9)
	assert.InDelta(t, p.Y, back.Y, 1e-9)
	assert.InDelta(t, p.Z, back.Z, 1e-9)

	id := tf.Compose(tf.Inverse())
	assert.InDelta(t, 0.0, id.Translation.Norm2D(), 1e-9)
	assert.InDelta(t, 0.0, id.Rotation.Yaw(), 1e-9)

	pose := tf.ApplyPose(PoseXYYaw(1, 0, 0.25))
	assert.InDelta(t, math.Pi/2+0.25, pose.Yaw(), 1e-9)
}

func TestTransformValidity(t *testing.T) {
	t.Parallel()
	assert.True(t, IdentityTransform.Valid())
	assert.True(t, Transform{Translation: Vec3{X: 3}, Rotation: QuaternionFromYaw(1)}.Valid())
	assert.False(t, Transform{Rotation: Quaternion{W: 2}}.Valid())
	assert.False(t, Transform{Translation: Vec3{X: math.NaN()}, Rotation: IdentityQuaternion}.Valid())
}

func TestPolygonAreaAndHull(t *testing.T) {
	t.Parallel()
	sq := square(0, 0, 1)
	assert.InDelta(t, 4.0, PolygonArea(sq), 1e-9)

	// Interior point must be dropped from the hull.
	pts := append([]Point2{{0, 0}}, sq...)
	hull := ConvexHull(pts)
	require.Len(t, hull, 4)
	assert.InDelta(t, 4.0, PolygonArea(hull), 1e-9)
}

func TestIoU2D(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b []Point2
		want float64
	}{
		{"identical", square(0, 0, 1), square(0, 0, 1), 1},
		{"disjoint", square(0, 0, 1), square(5, 5, 1), 0},
		{"half overlap", square(0, 0, 1), square(1, 0, 1), 2.0 / 6.0},
		{"contained", square(0, 0, 2), square(0, 0, 1), 4.0 / 16.0},
		{"degenerate", []Point2{{0, 0}, {1, 1}}, square(0, 0, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IoU2D(tt.a, tt.b), 1e-9)
		})
	}
}

func TestIoU2DRotated(t *testing.T) {
	t.Parallel()
	a := square(0, 0, 1)
	// Same square rotated 45°: intersection is a regular octagon.
	r := math.Sqrt2
	b := []Point2{{r, 0}, {0, r}, {-r, 0}, {0, -r}}
	inter := 8 * (math.Sqrt2 - 1) // octagon area for unit half-width square
	want := inter / (4 + 4 - inter)
	assert.InDelta(t, want, IoU2D(a, b), 1e-9)
}

func TestIoU3D(t *testing.T) {
	t.Parallel()
	a := square(0, 0, 1)
	assert.InDelta(t, 1.0, IoU3D(a, 0, 2, a, 0, 2), 1e-9)
	// Same footprint, half vertical overlap: 4*1 / (8+8-4).
	assert.InDelta(t, 4.0/12.0, IoU3D(a, 0, 2, a, 1, 2), 1e-9)
	// No vertical overlap.
	assert.InDelta(t, 0.0, IoU3D(a, 0, 1, a, 5, 1), 1e-9)
	// Zero height falls back to 2D.
	assert.InDelta(t, 1.0, IoU3D(a, 0, 0, a, 0, 2), 1e-9)
}
