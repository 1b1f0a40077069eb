package frontend

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/gaoxiang12/slam-in-ad-en/gnss"
	"github.com/gaoxiang12/slam-in-ad-en/keyframe"
	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/sensor"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// scriptedEstimator advances by a fixed step per scan.
type scriptedEstimator struct {
	step  spatialmath.Pose
	pose  spatialmath.Pose
	cloud pointcloud.PointCloud
}

func newScriptedEstimator(t *testing.T, step spatialmath.Pose) *scriptedEstimator {
	t.Helper()
	cloud := pointcloud.New()
	test.That(t, cloud.Set(r3.Vector{X: 1, Z: 1}, pointcloud.Data{}), test.ShouldBeNil)
	return &scriptedEstimator{step: step, pose: spatialmath.NewZeroPose(), cloud: cloud}
}

func (e *scriptedEstimator) AddIMU(sensor.IMU) {}

func (e *scriptedEstimator) AddScan(sensor.Scan) error {
	e.pose = spatialmath.Compose(e.pose, e.step)
	return nil
}

func (e *scriptedEstimator) Pose() spatialmath.Pose { return e.pose }

func (e *scriptedEstimator) Scan() pointcloud.PointCloud { return e.cloud }

func scanLog(n int, dt float64) []sensor.Message {
	msgs := make([]sensor.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, sensor.Scan{Time: float64(i) * dt})
	}
	return msgs
}

func runLog(t *testing.T, msgs []sensor.Message, step spatialmath.Pose, cfg Config) *keyframe.Store {
	t.Helper()
	logger := golog.NewTestLogger(t)
	store, err := keyframe.NewStore(t.TempDir(), logger)
	test.That(t, err, test.ShouldBeNil)
	est := newScriptedEstimator(t, step)
	err = Run(context.Background(), sensor.NewSliceSource(msgs), est, store, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	return store
}

func TestKeyframeThresholdMonotonicity(t *testing.T) {
	step := spatialmath.NewPoseFromPoint(r3.Vector{X: 0.2})
	msgs := scanLog(50, 0.1)

	prev := -1
	for _, dist := range []float64{0.1, 0.5, 1.0, 2.0} {
		store := runLog(t, msgs, step, Config{DistThreshold: dist, AngleThreshold: 100})
		if prev >= 0 {
			test.That(t, store.Len(), test.ShouldBeLessThanOrEqualTo, prev)
		}
		test.That(t, store.Len(), test.ShouldBeGreaterThanOrEqualTo, 1)
		prev = store.Len()
	}
}

func TestFirstScanAlwaysKeyframed(t *testing.T) {
	store := runLog(t, scanLog(1, 0.1), spatialmath.NewZeroPose(),
		Config{DistThreshold: 100, AngleThreshold: 100})
	test.That(t, store.Len(), test.ShouldEqual, 1)
}

func TestAngleThresholdTriggers(t *testing.T) {
	// pure rotation: distance never triggers, angle must
	step := spatialmath.NewPoseFromYaw(r3.Vector{}, 0.1)
	store := runLog(t, scanLog(10, 0.1), step, Config{DistThreshold: 100, AngleThreshold: 0.15})
	test.That(t, store.Len(), test.ShouldBeGreaterThan, 2)
}

func TestAbsolutePosesInterpolatedAndRebased(t *testing.T) {
	step := spatialmath.NewPoseFromPoint(r3.Vector{X: 1})
	msgs := []sensor.Message{
		sensor.FixMessage{Fix: gnss.Fix{Time: 0, UTM: r3.Vector{X: 1000, Y: 500}}},
		sensor.Scan{Time: 0.05},
		sensor.Scan{Time: 0.25},
		sensor.FixMessage{Fix: gnss.Fix{Time: 0.5, UTM: r3.Vector{X: 1010, Y: 500}}},
		sensor.Scan{Time: 0.8}, // beyond the last fix: not interpolatable
	}
	store := runLog(t, msgs, step, Config{DistThreshold: 0.5, AngleThreshold: 100})
	test.That(t, store.Len(), test.ShouldEqual, 3)

	kf0, _ := store.Get(0)
	test.That(t, kf0.AbsValid, test.ShouldBeTrue)
	// rebased on the first fix and interpolated a tenth of the way
	test.That(t, kf0.Abs.Point().X, test.ShouldAlmostEqual, 1.0, 1e-9)
	test.That(t, kf0.Abs.Point().Y, test.ShouldAlmostEqual, 0, 1e-9)

	kf2, _ := store.Get(2)
	test.That(t, kf2.AbsValid, test.ShouldBeFalse)
}

func TestNoFixesProceedsOnOdometry(t *testing.T) {
	step := spatialmath.NewPoseFromPoint(r3.Vector{X: 1})
	store := runLog(t, scanLog(5, 0.1), step, Config{DistThreshold: 0.5, AngleThreshold: 100})
	test.That(t, store.Len(), test.ShouldEqual, 5)
	store.Each(func(kf *keyframe.Keyframe) bool {
		test.That(t, kf.AbsValid, test.ShouldBeFalse)
		return true
	})

	// the table must exist and reopen
	logger := golog.NewTestLogger(t)
	reopened, err := keyframe.OpenStore(store.Dir(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reopened.Len(), test.ShouldEqual, 5)
}
