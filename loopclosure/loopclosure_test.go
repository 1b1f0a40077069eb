package loopclosure

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/gaoxiang12/slam-in-ad-en/keyframe"
	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// wallCloud builds two walls with clutter, all above the ground cut.
func wallCloud(t *testing.T) pointcloud.PointCloud {
	t.Helper()
	pc := pointcloud.New()
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 400; i++ {
		err := pc.Set(r3.Vector{
			X: rnd.Float64()*20 - 10,
			Y: 4 + rnd.NormFloat64()*0.02,
			Z: 0.2 + rnd.Float64()*2.5,
		}, pointcloud.Data{Intensity: rnd.Float64()})
		test.That(t, err, test.ShouldBeNil)
		err = pc.Set(r3.Vector{
			X: 6 + rnd.NormFloat64()*0.02,
			Y: rnd.Float64()*20 - 10,
			Z: 0.2 + rnd.Float64()*2.5,
		}, pointcloud.Data{Intensity: rnd.Float64()})
		test.That(t, err, test.ShouldBeNil)
	}
	return pc
}

func appendAt(t *testing.T, store *keyframe.Store, pose spatialmath.Pose, cloud pointcloud.PointCloud) {
	t.Helper()
	kf := &keyframe.Keyframe{Odom: pose, Opti1: pose, Opti2: pose}
	test.That(t, store.Append(kf, cloud), test.ShouldBeNil)
}

func TestDetectGreedyThinning(t *testing.T) {
	logger := golog.NewTestLogger(t)
	store, err := keyframe.NewStore(t.TempDir(), logger)
	test.That(t, err, test.ShouldBeNil)

	// out along x then straight back: frame i and frame 11-i share a position
	cloud := wallCloud(t)
	for i := 0; i <= 5; i++ {
		appendAt(t, store, spatialmath.NewPoseFromPoint(r3.Vector{X: float64(i) * 100}), cloud)
	}
	for i := 6; i <= 11; i++ {
		appendAt(t, store, spatialmath.NewPoseFromPoint(r3.Vector{X: float64(11-i) * 100}), cloud)
	}

	cfg := DefaultConfig()
	cfg.MinDistance = 10
	cfg.MinIDInterval = 6
	cfg.SkipID = 2

	cands := Detect(store, cfg)
	test.That(t, cands, test.ShouldResemble, []Candidate{{I: 0, J: 11}, {I: 2, J: 9}})
	for _, c := range cands {
		test.That(t, c.J-c.I, test.ShouldBeGreaterThanOrEqualTo, cfg.MinIDInterval)
	}
}

func TestRegisterIdenticalRevisit(t *testing.T) {
	logger := golog.NewTestLogger(t)
	store, err := keyframe.NewStore(t.TempDir(), logger)
	test.That(t, err, test.ShouldBeNil)

	pose := spatialmath.NewPoseFromYaw(r3.Vector{X: 5, Y: -3}, 0.3)
	cloud := wallCloud(t)
	appendAt(t, store, pose, cloud)
	appendAt(t, store, pose, cloud)

	cfg := DefaultConfig()
	cfg.ScoreThreshold = 0.2

	matches, err := Register(context.Background(), store, []Candidate{{I: 0, J: 1}}, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(matches), test.ShouldEqual, 1)
	test.That(t, matches[0].Score, test.ShouldBeGreaterThan, 0.3)
	test.That(t, matches[0].Rel.Point().Norm(), test.ShouldBeLessThan, 0.2)
	test.That(t, spatialmath.Yaw(matches[0].Rel.Rotation()), test.ShouldAlmostEqual, 0, 0.02)
}

func TestRegisterMissingKeyframe(t *testing.T) {
	logger := golog.NewTestLogger(t)
	store, err := keyframe.NewStore(t.TempDir(), logger)
	test.That(t, err, test.ShouldBeNil)
	appendAt(t, store, spatialmath.NewZeroPose(), wallCloud(t))

	_, err = Register(context.Background(), store, []Candidate{{I: 0, J: 5}}, DefaultConfig(), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLoopsFileRoundTrip(t *testing.T) {
	matches := []Match{
		{
			Candidate: Candidate{I: 3, J: 120},
			Rel:       spatialmath.NewPoseFromYaw(r3.Vector{X: 1.5, Y: -0.25, Z: 0.1}, 0.4),
			Score:     0.71,
		},
		{
			Candidate: Candidate{I: 40, J: 200},
			Rel:       spatialmath.NewPoseFromPoint(r3.Vector{Y: 2}),
			Score:     0.52,
		},
	}
	path := filepath.Join(t.TempDir(), LoopsFileName)
	test.That(t, WriteLoops(matches, path), test.ShouldBeNil)

	got, err := ReadLoops(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(got), test.ShouldEqual, len(matches))
	for i := range got {
		test.That(t, got[i].I, test.ShouldEqual, matches[i].I)
		test.That(t, got[i].J, test.ShouldEqual, matches[i].J)
		test.That(t, got[i].Score, test.ShouldAlmostEqual, matches[i].Score, 1e-9)
		test.That(t, spatialmath.AlmostEqual(got[i].Rel, matches[i].Rel, 1e-6), test.ShouldBeTrue)
	}
}
