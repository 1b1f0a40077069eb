package registration

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// structuredCloud builds a deterministic scene with two walls and scattered
// clutter so alignment is well conditioned in all six degrees of freedom.
func structuredCloud(seed int64) pointcloud.PointCloud {
	rng := rand.New(rand.NewSource(seed))
	pc := pointcloud.New()
	for i := 0; i < 1200; i++ {
		var p r3.Vector
		switch i % 3 {
		case 0: // wall along x
			p = r3.Vector{X: rng.Float64()*40 - 20, Y: 8 + rng.NormFloat64()*0.05, Z: rng.Float64() * 4}
		case 1: // wall along y
			p = r3.Vector{X: -12 + rng.NormFloat64()*0.05, Y: rng.Float64()*40 - 20, Z: rng.Float64() * 4}
		default: // clutter
			p = r3.Vector{
				X: rng.Float64()*30 - 15,
				Y: rng.Float64()*30 - 15,
				Z: rng.Float64() * 3,
			}
		}
		//nolint:errcheck
		pc.Set(p, pointcloud.Data{Intensity: 1})
	}
	return pc
}

func TestNDTRecoversOffset(t *testing.T) {
	target := structuredCloud(42)
	truth := spatialmath.NewPoseFromYaw(r3.Vector{X: 0.4, Y: -0.3, Z: 0.1}, 0.05)
	// source points expressed in a frame displaced by truth⁻¹
	source := pointcloud.ApplyPose(target, spatialmath.PoseInverse(truth))

	ndt := BuildNDT(target, 2.0)
	test.That(t, ndt, test.ShouldNotBeNil)
	res := ndt.Align(source, spatialmath.NewZeroPose())

	test.That(t, spatialmath.AlmostEqual(res.Pose, truth, 0.05), test.ShouldBeTrue)
	test.That(t, res.Score, test.ShouldBeGreaterThan, 0.5)
}

func TestCoarseToFineIdenticalClouds(t *testing.T) {
	target := structuredCloud(7)
	res := AlignCoarseToFine(target, target, spatialmath.NewZeroPose(), nil)
	test.That(t, spatialmath.AlmostEqual(res.Pose, spatialmath.NewZeroPose(), 0.05), test.ShouldBeTrue)
	test.That(t, res.Score, test.ShouldBeGreaterThan, 0.5)
}

func TestCoarseToFineEmptyInputsScoreZero(t *testing.T) {
	target := structuredCloud(7)
	empty := pointcloud.New()

	res := AlignCoarseToFine(empty, target, spatialmath.NewZeroPose(), nil)
	test.That(t, res.Score, test.ShouldEqual, 0.0)

	res = AlignCoarseToFine(target, empty, spatialmath.NewZeroPose(), nil)
	test.That(t, res.Score, test.ShouldEqual, 0.0)
}

func TestICPRecoversTranslation(t *testing.T) {
	target := structuredCloud(3)
	truth := spatialmath.NewPoseFromPoint(r3.Vector{X: 0.5, Y: 0.2})
	source := pointcloud.ApplyPose(target, spatialmath.PoseInverse(truth))

	res := RegisterICP(source, target, spatialmath.NewZeroPose(), DefaultICPConfig())
	test.That(t, spatialmath.AlmostEqual(res.Pose, truth, 0.05), test.ShouldBeTrue)
	test.That(t, res.Score, test.ShouldBeGreaterThan, 0.9)
}

func TestAlignTrajectories2D(t *testing.T) {
	truth := spatialmath.NewPoseFromYaw(r3.Vector{X: 3, Y: -2}, 0.8)
	var src, dst []r3.Vector
	for i := 0; i < 20; i++ {
		p := r3.Vector{X: float64(i) * 1.5, Y: math.Sin(float64(i) / 3)}
		src = append(src, p)
		dst = append(dst, truth.Transform(p))
	}
	got, ok := AlignTrajectories2D(src, dst)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, spatialmath.Yaw(got.Rotation()), test.ShouldAlmostEqual, 0.8, 1e-9)
	test.That(t, got.Point().X, test.ShouldAlmostEqual, 3, 1e-9)
	test.That(t, got.Point().Y, test.ShouldAlmostEqual, -2, 1e-9)

	_, ok = AlignTrajectories2D(src[:1], dst[:1])
	test.That(t, ok, test.ShouldBeFalse)
}
