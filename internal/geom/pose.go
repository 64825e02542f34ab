package geom

import "math"

// MatrixValidationTolerance is the tolerance for checking rotation matrix validity.
const MatrixValidationTolerance = 0.01

// Vec3 is a 3D vector or point.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale multiplies every component by k.
func (v Vec3) Scale(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }

// Norm2D returns the ground-plane length of v.
func (v Vec3) Norm2D() float64 { return math.Hypot(v.X, v.Y) }

// Quaternion is a unit rotation quaternion (W + Xi + Yj + Zk).
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternion{W: 1}

// QuaternionFromYaw returns a rotation of yaw radians about +Z.
func QuaternionFromYaw(yaw float64) Quaternion {
	return Quaternion{W: math.Cos(yaw / 2), Z: math.Sin(yaw / 2)}
}

// QuaternionFromRPY returns the rotation for intrinsic Z-Y-X (yaw, pitch, roll) angles.
func QuaternionFromRPY(roll, pitch, yaw float64) Quaternion {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	return Quaternion{
		W: cr*cp*cy + sr*sp*sy,
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
	}
}

// Normalized returns q scaled to unit length. A zero quaternion becomes identity.
func (q Quaternion) Normalized() Quaternion {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n < 1e-12 || math.IsNaN(n) || math.IsInf(n, 0) {
		return IdentityQuaternion
	}
	return Quaternion{q.W / n, q.X / n, q.Y / n, q.Z / n}
}

// Mul returns the Hamilton product q*o (apply o first, then q).
func (q Quaternion) Mul(o Quaternion) Quaternion {
	return Quaternion{
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
	}
}

// Conjugate returns the inverse rotation of a unit quaternion.
func (q Quaternion) Conjugate() Quaternion { return Quaternion{q.W, -q.X, -q.Y, -q.Z} }

// Yaw returns the rotation about +Z in [-π, π].
func (q Quaternion) Yaw() float64 {
	return math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
}

// Matrix returns the 3x3 rotation matrix in row-major order.
func (q Quaternion) Matrix() [9]float64 {
	q = q.Normalized()
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return [9]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

// Rotate applies the rotation to v.
func (q Quaternion) Rotate(v Vec3) Vec3 {
	r := q.Matrix()
	return Vec3{
		X: r[0]*v.X + r[1]*v.Y + r[2]*v.Z,
		Y: r[3]*v.X + r[4]*v.Y + r[5]*v.Z,
		Z: r[6]*v.X + r[7]*v.Y + r[8]*v.Z,
	}
}

// Pose is a position and orientation expressed in some reference frame.
type Pose struct {
	Position    Vec3       `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// PoseXYYaw builds a ground-plane pose.
func PoseXYYaw(x, y, yaw float64) Pose {
	return Pose{Position: Vec3{X: x, Y: y}, Orientation: QuaternionFromYaw(yaw)}
}

// Yaw is shorthand for p.Orientation.Yaw().
func (p Pose) Yaw() float64 { return p.Orientation.Yaw() }

// Transform is a rigid transform that maps coordinates from a source frame
// into a target frame: p_target = Rotation * p_source + Translation.
type Transform struct {
	Translation Vec3       `json:"translation"`
	Rotation    Quaternion `json:"rotation"`
}

// IdentityTransform leaves poses unchanged.
var IdentityTransform = Transform{Rotation: IdentityQuaternion}

// TransformFromPose interprets pose (of a child frame expressed in a parent
// frame) as the child→parent transform.
func TransformFromPose(p Pose) Transform {
	return Transform{Translation: p.Position, Rotation: p.Orientation.Normalized()}
}

// ApplyPoint maps a point from the source frame into the target frame.
func (t Transform) ApplyPoint(v Vec3) Vec3 {
	return t.Rotation.Rotate(v).Add(t.Translation)
}

// ApplyPose maps a pose from the source frame into the target frame.
func (t Transform) ApplyPose(p Pose) Pose {
	return Pose{
		Position:    t.ApplyPoint(p.Position),
		Orientation: t.Rotation.Mul(p.Orientation).Normalized(),
	}
}

// Compose returns the transform equivalent to applying o first and then t.
func (t Transform) Compose(o Transform) Transform {
	return Transform{
		Translation: t.ApplyPoint(o.Translation),
		Rotation:    t.Rotation.Mul(o.Rotation).Normalized(),
	}
}

// Inverse returns the target→source transform.
func (t Transform) Inverse() Transform {
	inv := t.Rotation.Normalized().Conjugate()
	return Transform{
		Translation: inv.Rotate(t.Translation).Scale(-1),
		Rotation:    inv,
	}
}

// AsPose returns the source frame origin expressed in the target frame.
func (t Transform) AsPose() Pose {
	return Pose{Position: t.Translation, Orientation: t.Rotation}
}

// Matrix returns the 4x4 homogeneous matrix in row-major order.
func (t Transform) Matrix() [16]float64 {
	r := t.Rotation.Matrix()
	return [16]float64{
		r[0], r[1], r[2], t.Translation.X,
		r[3], r[4], r[5], t.Translation.Y,
		r[6], r[7], r[8], t.Translation.Z,
		0, 0, 0, 1,
	}
}

// IsValidTransformMatrix checks if a 4x4 row-major matrix is a rigid
// transform: proper rotation (det ≈ 1) and last row [0 0 0 1].
func IsValidTransformMatrix(T [16]float64) bool {
	for _, v := range T {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	r00, r01, r02 := T[0], T[1], T[2]
	r10, r11, r12 := T[4], T[5], T[6]
	r20, r21, r22 := T[8], T[9], T[10]

	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > MatrixValidationTolerance {
		return false
	}
	if T[12] != 0 || T[13] != 0 || T[14] != 0 || math.Abs(T[15]-1.0) > 0.001 {
		return false
	}
	return true
}

// Valid reports whether the transform is finite and has a unit rotation.
func (t Transform) Valid() bool {
	q := t.Rotation
	n := q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z
	if math.Abs(n-1) > MatrixValidationTolerance {
		return false
	}
	return IsValidTransformMatrix(t.Matrix())
}
