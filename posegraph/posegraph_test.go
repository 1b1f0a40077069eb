package posegraph

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/gaoxiang12/slam-in-ad-en/keyframe"
	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

func tinyCloud(t *testing.T) pointcloud.PointCloud {
	t.Helper()
	pc := pointcloud.New()
	test.That(t, pc.Set(r3.Vector{X: 1}, pointcloud.Data{}), test.ShouldBeNil)
	return pc
}

func makeStore(t *testing.T, odom []spatialmath.Pose, abs []r3.Vector, valid []bool) *keyframe.Store {
	t.Helper()
	logger := golog.NewTestLogger(t)
	store, err := keyframe.NewStore(t.TempDir(), logger)
	test.That(t, err, test.ShouldBeNil)
	for i := range odom {
		kf := &keyframe.Keyframe{
			Timestamp: float64(i),
			Odom:      odom[i],
			Opti1:     odom[i],
		}
		if valid[i] {
			kf.Abs = spatialmath.NewPoseFromPoint(abs[i])
			kf.AbsValid = true
		}
		test.That(t, store.Append(kf, tinyCloud(t)), test.ShouldBeNil)
	}
	return store
}

func straightLine(n int) ([]spatialmath.Pose, []r3.Vector, []bool) {
	odom := make([]spatialmath.Pose, n)
	abs := make([]r3.Vector, n)
	valid := make([]bool, n)
	for i := 0; i < n; i++ {
		p := r3.Vector{X: float64(i) * 2}
		odom[i] = spatialmath.NewPoseFromPoint(p)
		abs[i] = p
		valid[i] = true
	}
	return odom, abs, valid
}

func TestStage1StraightLineExact(t *testing.T) {
	logger := golog.NewTestLogger(t)
	odom, abs, valid := straightLine(10)
	store := makeStore(t, odom, abs, valid)

	outliers, err := RunStage1(store, DefaultStageConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outliers, test.ShouldEqual, 0)

	store.Each(func(kf *keyframe.Keyframe) bool {
		test.That(t, kf.AbsValid, test.ShouldBeTrue)
		test.That(t, kf.Opti1.Point().Sub(kf.Abs.Point()).Norm(), test.ShouldBeLessThan, 1e-3)
		return true
	})
}

func TestStage1Idempotent(t *testing.T) {
	logger := golog.NewTestLogger(t)
	odom, abs, valid := straightLine(8)
	// perturb odometry a little so the first run has work to do
	for i := range odom {
		odom[i] = spatialmath.NewPoseFromPoint(odom[i].Point().Add(r3.Vector{Y: 0.05 * float64(i%3)}))
	}
	store := makeStore(t, odom, abs, valid)
	_, err := RunStage1(store, DefaultStageConfig(), logger)
	test.That(t, err, test.ShouldBeNil)

	// feed stage-1 output back in as if it were fresh odometry
	var opti []spatialmath.Pose
	store.Each(func(kf *keyframe.Keyframe) bool {
		opti = append(opti, kf.Opti1)
		return true
	})
	store2 := makeStore(t, opti, abs, valid)
	_, err = RunStage1(store2, DefaultStageConfig(), logger)
	test.That(t, err, test.ShouldBeNil)

	i := 0
	store2.Each(func(kf *keyframe.Keyframe) bool {
		test.That(t, spatialmath.AlmostEqual(kf.Opti1, opti[i], 0.02), test.ShouldBeTrue)
		i++
		return true
	})
}

func TestStage1RejectsOutlierFix(t *testing.T) {
	logger := golog.NewTestLogger(t)
	odom, abs, valid := straightLine(10)
	abs[4] = abs[4].Add(r3.Vector{Y: 25}) // wildly inconsistent fix
	store := makeStore(t, odom, abs, valid)

	outliers, err := RunStage1(store, DefaultStageConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outliers, test.ShouldEqual, 1)

	kf, ok := store.Get(4)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, kf.AbsValid, test.ShouldBeFalse)
	// the rejected fix must not drag the trajectory
	test.That(t, kf.Opti1.Point().Y, test.ShouldBeLessThan, 1.0)
}

func TestStage1GlobalHeadingAlignment(t *testing.T) {
	logger := golog.NewTestLogger(t)
	n := 10
	yaw := 0.5
	g := spatialmath.NewPoseFromYaw(r3.Vector{}, yaw)
	gInv := spatialmath.PoseInverse(g)

	odom := make([]spatialmath.Pose, n)
	abs := make([]r3.Vector, n)
	valid := make([]bool, n)
	for i := 0; i < n; i++ {
		truth := spatialmath.NewPoseFromPoint(r3.Vector{X: float64(i) * 3, Y: math.Sin(float64(i))})
		abs[i] = truth.Point()
		odom[i] = spatialmath.Compose(gInv, truth)
		valid[i] = true
	}
	store := makeStore(t, odom, abs, valid)

	outliers, err := RunStage1(store, DefaultStageConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outliers, test.ShouldEqual, 0)
	store.Each(func(kf *keyframe.Keyframe) bool {
		test.That(t, kf.Opti1.Point().Sub(kf.Abs.Point()).Norm(), test.ShouldBeLessThan, 0.05)
		return true
	})
}

func TestStage1OrientedFixesConstrainHeading(t *testing.T) {
	logger := golog.NewTestLogger(t)
	// a stationary vehicle: positions say nothing about heading, so only
	// the fix orientation can pin it
	store, err := keyframe.NewStore(t.TempDir(), logger)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 3; i++ {
		kf := &keyframe.Keyframe{
			Timestamp: float64(i),
			Odom:      spatialmath.NewZeroPose(),
			Opti1:     spatialmath.NewZeroPose(),
			Abs:       spatialmath.NewPoseFromYaw(r3.Vector{}, 0.7),
			AbsValid:  true,
		}
		test.That(t, store.Append(kf, tinyCloud(t)), test.ShouldBeNil)
	}

	cfg := DefaultStageConfig()
	cfg.AbsHasOrientation = true
	outliers, err := RunStage1(store, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outliers, test.ShouldEqual, 0)
	store.Each(func(kf *keyframe.Keyframe) bool {
		test.That(t, spatialmath.Yaw(kf.Opti1.Rotation()), test.ShouldAlmostEqual, 0.7, 0.01)
		test.That(t, kf.Opti1.Point().Norm(), test.ShouldBeLessThan, 0.01)
		return true
	})
}

func TestStage1AllInvalidRunsOnOdometry(t *testing.T) {
	logger := golog.NewTestLogger(t)
	odom, abs, _ := straightLine(5)
	valid := make([]bool, 5)
	store := makeStore(t, odom, abs, valid)

	outliers, err := RunStage1(store, DefaultStageConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outliers, test.ShouldEqual, 0)
	i := 0
	store.Each(func(kf *keyframe.Keyframe) bool {
		test.That(t, spatialmath.AlmostEqual(kf.Opti1, odom[i], 1e-6), test.ShouldBeTrue)
		i++
		return true
	})
}

func TestStage2LoopClosurePullsDrift(t *testing.T) {
	logger := golog.NewTestLogger(t)
	n := 6
	odom := make([]spatialmath.Pose, n)
	abs := make([]r3.Vector, n)
	valid := make([]bool, n)
	for i := 0; i < n; i++ {
		// drifting odometry: each step overshoots in y
		odom[i] = spatialmath.NewPoseFromPoint(r3.Vector{X: float64(i), Y: 0.2 * float64(i)})
	}
	store := makeStore(t, odom, abs, valid)
	_, err := RunStage1(store, DefaultStageConfig(), logger)
	test.That(t, err, test.ShouldBeNil)

	// a loop closure that knows frames 0 and 5 are exactly 5 m apart in x
	loops := []LoopConstraint{{I: 0, J: 5, Rel: spatialmath.NewPoseFromPoint(r3.Vector{X: 5})}}
	cfg := DefaultStageConfig()
	cfg.LoopTransNoise = 0.05
	cfg.LoopRotNoise = 0.01
	problem, err := RunStage2(store, loops, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, problem, test.ShouldNotBeNil)

	first, _ := store.Get(0)
	last, _ := store.Get(5)
	rel := spatialmath.PoseBetween(first.Opti2, last.Opti2)
	// drift was 1.0 in y; the loop must cut it well down
	test.That(t, math.Abs(rel.Point().Y), test.ShouldBeLessThan, 0.35)
	test.That(t, rel.Point().X, test.ShouldAlmostEqual, 5, 0.3)
}

func TestG2OExport(t *testing.T) {
	problem := &Problem{
		Poses: []spatialmath.Pose{
			spatialmath.NewZeroPose(),
			spatialmath.NewPoseFromPoint(r3.Vector{X: 1}),
		},
		Factors: []*Factor{
			{Kind: FactorRelativeMotion, I: 0, J: 1,
				Obs: spatialmath.NewPoseFromPoint(r3.Vector{X: 1}), WTrans: 10, WRot: 100},
			{Kind: FactorAbsolutePosition, I: 0, ObsPos: r3.Vector{}, WTrans: 2},
			{Kind: FactorAbsolutePose, I: 1,
				Obs: spatialmath.NewPoseFromYaw(r3.Vector{X: 1}, 0.3), WTrans: 2, WRot: 20},
		},
	}
	var buf bytes.Buffer
	test.That(t, WriteG2O(problem, &buf), test.ShouldBeNil)
	out := buf.String()
	test.That(t, strings.Count(out, "VERTEX_SE3:QUAT"), test.ShouldEqual, 2)
	test.That(t, strings.Count(out, "EDGE_SE3:QUAT"), test.ShouldEqual, 1)
	test.That(t, strings.Count(out, "EDGE_SE3_PRIOR"), test.ShouldEqual, 2)
	test.That(t, out, test.ShouldContainSubstring, "PARAMS_SE3OFFSET")
}
