package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestComposeInverse(t *testing.T) {
	p := NewPoseFromYaw(r3.Vector{X: 1, Y: 2, Z: 3}, 0.7)
	q := NewPoseFromYaw(r3.Vector{X: -4, Y: 0.5, Z: 0}, -1.2)

	back := Compose(p, PoseInverse(p))
	test.That(t, AlmostEqual(back, NewZeroPose(), 1e-10), test.ShouldBeTrue)

	rel := PoseBetween(p, q)
	test.That(t, AlmostEqual(Compose(p, rel), q, 1e-10), test.ShouldBeTrue)
}

func TestTransformMatchesCompose(t *testing.T) {
	p := NewPoseFromYaw(r3.Vector{X: 2, Y: 0, Z: 0}, math.Pi/2)
	got := p.Transform(r3.Vector{X: 1, Y: 0, Z: 0})
	test.That(t, got.X, test.ShouldAlmostEqual, 2, 1e-12)
	test.That(t, got.Y, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, got.Z, test.ShouldAlmostEqual, 0, 1e-12)
}

func TestLogExpRoundTrip(t *testing.T) {
	for _, w := range []r3.Vector{
		{},
		{X: 0.1},
		{X: -0.3, Y: 0.2, Z: 1.5},
		{Z: 3.0},
	} {
		got := RotationLog(RotationExp(w))
		test.That(t, got.X, test.ShouldAlmostEqual, w.X, 1e-9)
		test.That(t, got.Y, test.ShouldAlmostEqual, w.Y, 1e-9)
		test.That(t, got.Z, test.ShouldAlmostEqual, w.Z, 1e-9)
	}
}

func TestPoseDeltaOrdering(t *testing.T) {
	p := NewPoseFromYaw(r3.Vector{X: 1, Y: 2, Z: 3}, 0.5)
	d := PoseDelta(p)
	// translation components come first
	test.That(t, d[0], test.ShouldAlmostEqual, 1)
	test.That(t, d[1], test.ShouldAlmostEqual, 2)
	test.That(t, d[2], test.ShouldAlmostEqual, 3)
	test.That(t, d[5], test.ShouldAlmostEqual, 0.5, 1e-12)

	back := PoseExp(d)
	test.That(t, AlmostEqual(back, p, 1e-10), test.ShouldBeTrue)
}

func TestInterpolate(t *testing.T) {
	p1 := NewPoseFromYaw(r3.Vector{}, 0)
	p2 := NewPoseFromYaw(r3.Vector{X: 2, Y: 4, Z: 0}, math.Pi/2)

	mid := Interpolate(p1, p2, 0.5)
	test.That(t, mid.Point().X, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, mid.Point().Y, test.ShouldAlmostEqual, 2, 1e-12)
	test.That(t, Yaw(mid.Rotation()), test.ShouldAlmostEqual, math.Pi/4, 1e-9)

	// endpoints are exact
	test.That(t, AlmostEqual(Interpolate(p1, p2, 0), p1, 1e-12), test.ShouldBeTrue)
	test.That(t, AlmostEqual(Interpolate(p1, p2, 1), p2, 1e-12), test.ShouldBeTrue)
}

func TestYaw(t *testing.T) {
	for _, yaw := range []float64{0, 0.25, -1.5, 3.0} {
		p := NewPoseFromYaw(r3.Vector{}, yaw)
		test.That(t, Yaw(p.Rotation()), test.ShouldAlmostEqual, yaw, 1e-9)
	}
}
