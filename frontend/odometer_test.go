package frontend

import (
	"math/rand"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/sensor"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

func structuredWorld(t *testing.T) pointcloud.PointCloud {
	t.Helper()
	pc := pointcloud.New()
	rnd := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		err := pc.Set(r3.Vector{
			X: rnd.Float64()*20 - 10,
			Y: 6 + rnd.NormFloat64()*0.02,
			Z: 0.3 + rnd.Float64()*2,
		}, pointcloud.Data{})
		test.That(t, err, test.ShouldBeNil)
		err = pc.Set(r3.Vector{
			X: -5 + rnd.NormFloat64()*0.02,
			Y: rnd.Float64()*20 - 10,
			Z: 0.3 + rnd.Float64()*2,
		}, pointcloud.Data{})
		test.That(t, err, test.ShouldBeNil)
	}
	return pc
}

func TestNDTOdometerTracksMotion(t *testing.T) {
	logger := golog.NewTestLogger(t)
	world := structuredWorld(t)
	odo := NewNDTOdometer(DefaultOdometerConfig(), logger)

	truth := spatialmath.NewZeroPose()
	step := spatialmath.NewPoseFromYaw(r3.Vector{X: 0.3}, 0.02)
	for i := 0; i < 5; i++ {
		scanCloud := pointcloud.ApplyPose(world, spatialmath.PoseInverse(truth))
		err := odo.AddScan(sensor.Scan{Time: float64(i) * 0.1, Cloud: scanCloud})
		test.That(t, err, test.ShouldBeNil)
		truth = spatialmath.Compose(truth, step)
	}
	// truth was advanced once past the last scan
	truth = spatialmath.Compose(truth, spatialmath.PoseInverse(step))

	got := odo.Pose()
	test.That(t, got.Point().Sub(truth.Point()).Norm(), test.ShouldBeLessThan, 0.15)
	test.That(t, spatialmath.Yaw(got.Rotation()), test.ShouldAlmostEqual,
		spatialmath.Yaw(truth.Rotation()), 0.02)
	test.That(t, odo.Scan(), test.ShouldNotBeNil)
}

func TestNDTOdometerRejectsEmptyScan(t *testing.T) {
	logger := golog.NewTestLogger(t)
	odo := NewNDTOdometer(DefaultOdometerConfig(), logger)
	err := odo.AddScan(sensor.Scan{Time: 1, Cloud: pointcloud.New()})
	test.That(t, err, test.ShouldNotBeNil)
}
