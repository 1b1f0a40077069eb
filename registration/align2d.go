package registration

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// AlignTrajectories2D finds the planar rigid transform (heading + x-y
// translation) taking src onto dst in the least squares sense. The inputs
// are matched point-for-point, as when pairing each keyframe's odometry
// position with its absolute fix. Used to estimate the single global
// heading offset between the odometry and absolute frames.
func AlignTrajectories2D(src, dst []r3.Vector) (spatialmath.Pose, bool) {
	if len(src) != len(dst) || len(src) < 2 {
		return spatialmath.NewZeroPose(), false
	}
	n := float64(len(src))
	var cs, cd r3.Vector
	for i := range src {
		cs = cs.Add(src[i])
		cd = cd.Add(dst[i])
	}
	cs = cs.Mul(1 / n)
	cd = cd.Mul(1 / n)

	var sxx, sxy, syx, syy float64
	for i := range src {
		s := src[i].Sub(cs)
		d := dst[i].Sub(cd)
		sxx += d.X * s.X
		sxy += d.X * s.Y
		syx += d.Y * s.X
		syy += d.Y * s.Y
	}
	yaw := math.Atan2(syx-sxy, sxx+syy)
	rot := spatialmath.NewPoseFromYaw(r3.Vector{}, yaw)
	tr := cd.Sub(rot.Transform(cs))
	tr.Z = 0
	return spatialmath.NewPoseFromYaw(tr, yaw), true
}

// matrixToQuat converts a 3x3 rotation matrix to a unit quaternion
// (Shepperd's method).
func matrixToQuat(m mat.Matrix) quat.Number {
	r00, r01, r02 := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	r10, r11, r12 := m.At(1, 0), m.At(1, 1), m.At(1, 2)
	r20, r21, r22 := m.At(2, 0), m.At(2, 1), m.At(2, 2)

	trace := r00 + r11 + r22
	var q quat.Number
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = quat.Number{
			Real: 0.25 / s,
			Imag: (r21 - r12) * s,
			Jmag: (r02 - r20) * s,
			Kmag: (r10 - r01) * s,
		}
	case r00 > r11 && r00 > r22:
		s := 2 * math.Sqrt(1 + r00 - r11 - r22)
		q = quat.Number{
			Real: (r21 - r12) / s,
			Imag: 0.25 * s,
			Jmag: (r01 + r10) / s,
			Kmag: (r02 + r20) / s,
		}
	case r11 > r22:
		s := 2 * math.Sqrt(1 + r11 - r00 - r22)
		q = quat.Number{
			Real: (r02 - r20) / s,
			Imag: (r01 + r10) / s,
			Jmag: 0.25 * s,
			Kmag: (r12 + r21) / s,
		}
	default:
		s := 2 * math.Sqrt(1 + r22 - r00 - r11)
		q = quat.Number{
			Real: (r10 - r01) / s,
			Imag: (r02 + r20) / s,
			Jmag: (r12 + r21) / s,
			Kmag: 0.25 * s,
		}
	}
	return spatialmath.Normalize(q)
}
