package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// If the sine of a half angle is smaller than this, small-angle
// approximations are used to avoid dividing by near-zero.
const angleEpsilon = 1e-10

// Normalize scales q to unit norm. The zero quaternion maps to identity.
func Normalize(q quat.Number) quat.Number {
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if n < angleEpsilon {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// Rotate applies the unit quaternion q to the vector v, q v q*.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	qv := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, qv), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// RotationLog returns the rotation vector (axis times angle, radians) of a
// unit quaternion.
func RotationLog(q quat.Number) r3.Vector {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	im := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	sin := im.Norm()
	if sin < angleEpsilon {
		// first-order: q ≈ (1, w/2)
		return im.Mul(2)
	}
	angle := 2 * math.Atan2(sin, q.Real)
	return im.Mul(angle / sin)
}

// RotationExp maps a rotation vector back to a unit quaternion.
func RotationExp(w r3.Vector) quat.Number {
	angle := w.Norm()
	if angle < angleEpsilon {
		return Normalize(quat.Number{Real: 1, Imag: w.X / 2, Jmag: w.Y / 2, Kmag: w.Z / 2})
	}
	s := math.Sin(angle/2) / angle
	return quat.Number{Real: math.Cos(angle / 2), Imag: w.X * s, Jmag: w.Y * s, Kmag: w.Z * s}
}

// slerp spherically interpolates between two unit quaternions.
func slerp(q1, q2 quat.Number, s float64) quat.Number {
	dot := q1.Real*q2.Real + q1.Imag*q2.Imag + q1.Jmag*q2.Jmag + q1.Kmag*q2.Kmag
	if dot < 0 {
		q2 = quat.Scale(-1, q2)
		dot = -dot
	}
	if dot > 1-angleEpsilon {
		// nearly parallel, fall back to lerp
		return Normalize(quat.Add(quat.Scale(1-s, q1), quat.Scale(s, q2)))
	}
	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)
	a := math.Sin((1-s)*theta) / sinTheta
	b := math.Sin(s*theta) / sinTheta
	return Normalize(quat.Add(quat.Scale(a, q1), quat.Scale(b, q2)))
}

// Yaw returns the heading about +Z encoded in q.
func Yaw(q quat.Number) float64 {
	siny := 2 * (q.Real*q.Kmag + q.Imag*q.Jmag)
	cosy := 1 - 2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag)
	return math.Atan2(siny, cosy)
}
