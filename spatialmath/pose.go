// Package spatialmath defines spatial mathematical operations for rigid
// transforms in 3D (SE3) built on gonum quaternions.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform: a rotation represented by a unit quaternion
// plus a translation. The zero value is not a valid pose; use NewZeroPose.
type Pose struct {
	rot quat.Number
	tr  r3.Vector
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return Pose{rot: quat.Number{Real: 1}}
}

// NewPose returns a pose with the given translation and unit rotation quaternion.
func NewPose(tr r3.Vector, rot quat.Number) Pose {
	return Pose{rot: Normalize(rot), tr: tr}
}

// NewPoseFromPoint returns a pure translation.
func NewPoseFromPoint(tr r3.Vector) Pose {
	return Pose{rot: quat.Number{Real: 1}, tr: tr}
}

// NewPoseFromYaw returns a pose rotated about +Z by yaw radians, then translated.
func NewPoseFromYaw(tr r3.Vector, yaw float64) Pose {
	half := yaw / 2
	return Pose{rot: quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)}, tr: tr}
}

// Point returns the translation component.
func (p Pose) Point() r3.Vector { return p.tr }

// Rotation returns the rotation quaternion.
func (p Pose) Rotation() quat.Number { return p.rot }

// Transform applies the pose to a point.
func (p Pose) Transform(v r3.Vector) r3.Vector {
	return Rotate(p.rot, v).Add(p.tr)
}

// Compose returns a ∘ b, the pose applying b first and then a.
func Compose(a, b Pose) Pose {
	return Pose{
		rot: Normalize(quat.Mul(a.rot, b.rot)),
		tr:  a.Transform(b.tr),
	}
}

// PoseInverse returns the pose p⁻¹ such that Compose(p, p⁻¹) is identity.
func PoseInverse(p Pose) Pose {
	inv := quat.Conj(p.rot)
	return Pose{rot: inv, tr: Rotate(inv, p.tr).Mul(-1)}
}

// PoseBetween returns the transform from a to b, a⁻¹ ∘ b.
func PoseBetween(a, b Pose) Pose {
	return Compose(PoseInverse(a), b)
}

// PoseDelta returns the tangent-space coordinates of p as a 6-vector with
// translation components before rotation components.
func PoseDelta(p Pose) [6]float64 {
	w := RotationLog(p.rot)
	return [6]float64{p.tr.X, p.tr.Y, p.tr.Z, w.X, w.Y, w.Z}
}

// PoseExp maps a 6-vector (translation before rotation) back to a pose.
func PoseExp(d [6]float64) Pose {
	return Pose{
		rot: RotationExp(r3.Vector{X: d[3], Y: d[4], Z: d[5]}),
		tr:  r3.Vector{X: d[0], Y: d[1], Z: d[2]},
	}
}

// Interpolate returns the pose at fraction s between p1 (s=0) and p2 (s=1).
// Translation is interpolated linearly and orientation spherically.
func Interpolate(p1, p2 Pose, s float64) Pose {
	return Pose{
		rot: slerp(p1.rot, p2.rot, s),
		tr:  p1.tr.Add(p2.tr.Sub(p1.tr).Mul(s)),
	}
}

// AlmostEqual reports whether two poses agree within epsilon in both
// translation distance and rotation angle (radians).
func AlmostEqual(a, b Pose, epsilon float64) bool {
	d := PoseBetween(a, b)
	return d.tr.Norm() <= epsilon && RotationLog(d.rot).Norm() <= epsilon
}
