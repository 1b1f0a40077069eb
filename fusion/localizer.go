// Package fusion localizes a vehicle online against a tiled map by fusing
// inertial prediction with LiDAR scan registration through an error-state
// filter. It starts blind: the first absolute fix triggers a multi-angle
// grid search that bootstraps the heading the fix does not carry.
package fusion

import (
	"context"
	"math"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"gonum.org/v1/gonum/num/quat"

	"github.com/gaoxiang12/slam-in-ad-en/eskf"
	"github.com/gaoxiang12/slam-in-ad-en/gnss"
	"github.com/gaoxiang12/slam-in-ad-en/maptile"
	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/registration"
	"github.com/gaoxiang12/slam-in-ad-en/sensor"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
	"github.com/gaoxiang12/slam-in-ad-en/utils"
)

// Config holds the localizer parameters.
type Config struct {
	// SearchAngleStep is the heading increment (radians) of the
	// initialization grid search over the full circle.
	SearchAngleStep float64
	// RTKSearchMinScore is the score the best grid-search candidate must
	// exceed for initialization to succeed.
	RTKSearchMinScore float64

	// VoxelSize thins each incoming scan before registration.
	VoxelSize float64
	// NDTResolution is the steady-state registration cell size.
	NDTResolution float64
	// Resolutions is the coarse-to-fine schedule of the grid search.
	Resolutions []float64

	// RegTransNoise and RegRotNoise weight the registration result when it
	// is fed back into the filter as a pose observation.
	RegTransNoise float64
	RegRotNoise   float64

	Filter eskf.Options
}

// DefaultConfig returns the localizer parameters used by the pipeline.
func DefaultConfig() Config {
	return Config{
		SearchAngleStep:   10 * math.Pi / 180,
		RTKSearchMinScore: 0.35,
		VoxelSize:         0.5,
		NDTResolution:     1.0,
		Resolutions:       registration.DefaultResolutions,
		RegTransNoise:     0.1,
		RegRotNoise:       0.01,
		Filter:            eskf.DefaultOptions(),
	}
}

// Localizer consumes interleaved IMU, scan, and fix streams in time order
// and produces a corrected pose per scan. The cycle itself is
// single-threaded; only the grid search fans out internally.
type Localizer struct {
	cfg    Config
	logger golog.Logger
	clock  clock.Clock

	tiles  *maptile.TileSet
	filter *eskf.Filter
	ndt    *registration.NDT

	working   *atomic.Bool
	lastFix   *gnss.Fix
	failedFix *gnss.Fix
	lastGyro  r3.Vector
}

// NewLocalizer returns a localizer in the waiting-for-fix state.
func NewLocalizer(tiles *maptile.TileSet, cfg Config, logger golog.Logger) *Localizer {
	return &Localizer{
		cfg:     cfg,
		logger:  logger,
		clock:   clock.New(),
		tiles:   tiles,
		filter:  eskf.New(cfg.Filter),
		working: atomic.NewBool(false),
	}
}

// Working reports whether the localizer has initialized.
func (l *Localizer) Working() bool { return l.working.Load() }

// FailedFix returns the fix of the last failed initialization attempt, if
// any, for diagnostics.
func (l *Localizer) FailedFix() *gnss.Fix { return l.failedFix }

// Reset drops all state and returns to waiting for a fix.
func (l *Localizer) Reset() {
	l.working.Store(false)
	l.lastFix = nil
	l.failedFix = nil
	l.ndt = nil
	l.filter = eskf.New(l.cfg.Filter)
	l.logger.Infow("localizer reset")
}

// OnFix caches the fix for initialization. Once working, fixes are ignored.
func (l *Localizer) OnFix(fix gnss.Fix) {
	if l.working.Load() {
		return
	}
	f := fix
	l.lastFix = &f
}

// OnIMU advances the filter. Samples must arrive in timestamp order.
func (l *Localizer) OnIMU(imu sensor.IMU) {
	l.lastGyro = imu.Gyro
	if !l.working.Load() {
		return
	}
	l.filter.Predict(imu)
}

// OnScan runs one localization cycle and returns the corrected pose. The
// boolean is false while the localizer has not initialized yet.
func (l *Localizer) OnScan(ctx context.Context, scan sensor.Scan) (spatialmath.Pose, bool, error) {
	if !l.working.Load() {
		if l.lastFix == nil {
			return spatialmath.Pose{}, false, nil
		}
		if err := l.tryInit(ctx, scan, *l.lastFix); err != nil {
			return spatialmath.Pose{}, false, err
		}
		return l.filter.Nominal(), l.working.Load(), nil
	}

	cycleStart := l.clock.Now()
	pred := l.filter.Nominal()

	motion := l.predictedMotion(scan.Period)
	source := pointcloud.VoxelDownsample(Undistort(scan, motion), l.cfg.VoxelSize)

	changed, err := l.tiles.Update(pred.Point())
	if err != nil {
		return spatialmath.Pose{}, false, err
	}
	if changed || l.ndt == nil {
		l.ndt = registration.BuildNDT(l.tiles.Aggregate(), l.cfg.NDTResolution)
	}
	if l.ndt == nil {
		return spatialmath.Pose{}, false, errors.New("no map tiles around predicted position")
	}

	res := l.ndt.Align(source, pred)
	if err := l.filter.ObservePose(res.Pose, l.cfg.RegTransNoise, l.cfg.RegRotNoise); err != nil {
		return spatialmath.Pose{}, false, err
	}

	out := l.filter.Nominal()
	l.logger.Debugw("localization cycle",
		"time", scan.Time, "score", res.Score, "took", l.clock.Since(cycleStart))
	return out, true, nil
}

// tryInit runs the multi-angle grid search against the cached fix. On
// success the filter is seeded and the localizer transitions to working as
// one atomic step; on failure the fix is recorded and the next one retries.
func (l *Localizer) tryInit(ctx context.Context, scan sensor.Scan, fix gnss.Fix) error {
	if _, err := l.tiles.Update(fix.UTM); err != nil {
		return err
	}
	target := l.tiles.Aggregate()
	source := pointcloud.VoxelDownsample(scan.Cloud, l.cfg.VoxelSize)

	n := int(math.Round(2 * math.Pi / l.cfg.SearchAngleStep))
	fs := make([]utils.FloatFunc, n)
	for i := 0; i < n; i++ {
		seed := spatialmath.NewPoseFromYaw(fix.UTM, float64(i)*l.cfg.SearchAngleStep)
		fs[i] = func(ctx context.Context) (float64, error) {
			return registration.AlignCoarseToFine(source, target, seed, l.cfg.Resolutions).Score, nil
		}
	}
	elapsed, scores, err := utils.GetInParallel(ctx, fs)
	if err != nil {
		return err
	}

	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	if len(scores) == 0 || scores[best] <= l.cfg.RTKSearchMinScore {
		f := fix
		l.failedFix = &f
		l.lastFix = nil
		l.logger.Warnw("initialization search failed",
			"fix", fix.UTM, "bestScore", bestScore(scores, best), "elapsed", elapsed)
		return nil
	}

	seed := spatialmath.NewPoseFromYaw(fix.UTM, float64(best)*l.cfg.SearchAngleStep)
	res := registration.AlignCoarseToFine(source, target, seed, l.cfg.Resolutions)

	l.filter.SetState(scan.Time, res.Pose, r3.Vector{})
	l.filter.SetCovariance(0.1, 0.1, 0.1, 1e-4)
	l.ndt = registration.BuildNDT(target, l.cfg.NDTResolution)
	l.lastFix = nil
	l.failedFix = nil
	l.working.Store(true)
	l.logger.Infow("initialized from grid search",
		"heading", float64(best)*l.cfg.SearchAngleStep, "score", res.Score, "elapsed", elapsed)
	return nil
}

// predictedMotion is the filter's pose change over one sweep, used for
// undistortion.
func (l *Localizer) predictedMotion(period float64) spatialmath.Pose {
	if period <= 0 {
		return spatialmath.NewZeroPose()
	}
	rot := l.filter.Nominal().Rotation()
	bodyVel := spatialmath.Rotate(quat.Conj(rot), l.filter.Velocity())
	return spatialmath.NewPose(
		bodyVel.Mul(period),
		spatialmath.RotationExp(l.lastGyro.Mul(period)),
	)
}

func bestScore(scores []float64, best int) float64 {
	if best < len(scores) {
		return scores[best]
	}
	return 0
}
