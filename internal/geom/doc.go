// Package geom holds the geometric primitives shared by the tracking
// engine: vectors, quaternions, poses, rigid transforms between reference
// frames, and ground-plane polygon operations used for overlap scoring.
//
// Conventions: right-handed frames, Z up, yaw measured counter-clockwise
// from +X, angles in radians, distances in metres.
package geom
