package keyframe

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

func testCloud(t *testing.T, x float64) pointcloud.PointCloud {
	t.Helper()
	pc := pointcloud.New()
	test.That(t, pc.Set(r3.Vector{X: x, Y: 1, Z: 2}, pointcloud.Data{Intensity: 5, Ring: 3}), test.ShouldBeNil)
	test.That(t, pc.Set(r3.Vector{X: x + 1}, pointcloud.Data{}), test.ShouldBeNil)
	return pc
}

func TestAppendAssignsSequentialIDs(t *testing.T) {
	logger := golog.NewTestLogger(t)
	store, err := NewStore(t.TempDir(), logger)
	test.That(t, err, test.ShouldBeNil)

	for i := 0; i < 3; i++ {
		kf := &Keyframe{Timestamp: float64(i)}
		test.That(t, store.Append(kf, testCloud(t, float64(i))), test.ShouldBeNil)
		test.That(t, kf.ID, test.ShouldEqual, int64(i))
	}
	test.That(t, store.Len(), test.ShouldEqual, 3)
}

func TestCloudLoadRelease(t *testing.T) {
	logger := golog.NewTestLogger(t)
	store, err := NewStore(t.TempDir(), logger)
	test.That(t, err, test.ShouldBeNil)

	kf := &Keyframe{Timestamp: 1}
	test.That(t, store.Append(kf, testCloud(t, 7)), test.ShouldBeNil)

	cloud, err := store.LoadCloud(kf.ID)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 2)

	// second load shares the cached copy
	again, err := store.LoadCloud(kf.ID)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldEqual, cloud)

	store.ReleaseCloud(kf.ID)
	store.ReleaseCloud(kf.ID)

	// the file survives eviction and can be loaded again
	reloaded, err := store.LoadCloud(kf.ID)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reloaded.Size(), test.ShouldEqual, 2)
	store.ReleaseCloud(kf.ID)

	_, err = store.LoadCloud(99)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTableRoundTrip(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()
	store, err := NewStore(dir, logger)
	test.That(t, err, test.ShouldBeNil)

	kf := &Keyframe{
		Timestamp: 12.5,
		Odom:      spatialmath.NewPoseFromYaw(r3.Vector{X: 1, Y: 2, Z: 0.5}, 0.3),
		Abs:       spatialmath.NewPoseFromPoint(r3.Vector{X: 1.1, Y: 2.1}),
		AbsValid:  true,
		Opti1:     spatialmath.NewPoseFromYaw(r3.Vector{X: 1.05}, 0.31),
		Opti2:     spatialmath.NewPoseFromYaw(r3.Vector{X: 1.06}, 0.29),
	}
	test.That(t, store.Append(kf, testCloud(t, 0)), test.ShouldBeNil)
	test.That(t, store.Append(&Keyframe{Timestamp: 13.5}, testCloud(t, 1)), test.ShouldBeNil)
	test.That(t, store.WriteTable(), test.ShouldBeNil)

	reopened, err := OpenStore(dir, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reopened.Len(), test.ShouldEqual, 2)

	got, ok := reopened.Get(0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got.Timestamp, test.ShouldAlmostEqual, 12.5)
	test.That(t, got.AbsValid, test.ShouldBeTrue)
	test.That(t, spatialmath.AlmostEqual(got.Odom, kf.Odom, 1e-6), test.ShouldBeTrue)
	test.That(t, spatialmath.AlmostEqual(got.Opti2, kf.Opti2, 1e-6), test.ShouldBeTrue)

	got1, ok := reopened.Get(1)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got1.AbsValid, test.ShouldBeFalse)
}
