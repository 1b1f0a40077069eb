// Package frontend replays a recorded sensor log through an external
// odometry estimator and extracts keyframes by motion thresholds,
// attaching interpolated absolute poses.
package frontend

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/gaoxiang12/slam-in-ad-en/gnss"
	"github.com/gaoxiang12/slam-in-ad-en/keyframe"
	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/sensor"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// Estimator is the external odometry collaborator. AddScan advances the
// estimate; Pose and Scan expose the state after the last scan.
type Estimator interface {
	AddIMU(imu sensor.IMU)
	AddScan(scan sensor.Scan) error
	Pose() spatialmath.Pose
	Scan() pointcloud.PointCloud
}

// Config holds the keyframe extraction thresholds.
type Config struct {
	// DistThreshold and AngleThreshold trigger a new keyframe when the
	// motion since the last one exceeds either.
	DistThreshold  float64
	AngleThreshold float64
}

// DefaultConfig returns the extraction thresholds used by the pipeline.
func DefaultConfig() Config {
	return Config{DistThreshold: 0.5, AngleThreshold: 0.26}
}

// Run makes two passes over the log. The first drains the absolute fixes
// and rebases them on the first fix; the second drives the estimator and
// extracts keyframes. The keyframe table is written at the end.
func Run(
	ctx context.Context,
	src sensor.Source,
	est Estimator,
	store *keyframe.Store,
	cfg Config,
	logger golog.Logger,
) error {
	fixes := gnss.NewSeries()
	for {
		msg, ok := src.Next()
		if !ok {
			break
		}
		if fm, ok := msg.(sensor.FixMessage); ok {
			fixes.Insert(fm.Fix.Time, fm.Fix)
		}
	}
	if fixes.Len() == 0 {
		logger.Warnw("no absolute fixes in log, mapping on odometry alone")
	} else {
		origin := gnss.SubtractOrigin(fixes)
		logger.Infow("map origin set", "utm", origin, "fixes", fixes.Len())
	}
	src.Reset()

	var last *keyframe.Keyframe
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, ok := src.Next()
		if !ok {
			break
		}
		switch m := msg.(type) {
		case sensor.IMU:
			est.AddIMU(m)
		case sensor.Scan:
			if err := est.AddScan(m); err != nil {
				return errors.Wrapf(err, "odometry failed at t=%.3f", m.Time)
			}
			cur := est.Pose()
			if last != nil && !exceedsThresholds(last.Odom, cur, cfg) {
				continue
			}
			kf := &keyframe.Keyframe{Timestamp: m.Time, Odom: cur, Opti1: cur, Opti2: cur}
			if abs, _, ok := gnss.InterpolateAt(fixes, m.Time); ok {
				kf.Abs = abs
				kf.AbsValid = true
			} else {
				kf.Abs = spatialmath.NewZeroPose()
			}
			if err := store.Append(kf, est.Scan()); err != nil {
				return err
			}
			last = kf
		case sensor.FixMessage:
			// consumed in the first pass
		}
	}

	if store.Len() == 0 {
		return errors.New("log produced no keyframes")
	}
	if err := store.WriteTable(); err != nil {
		return err
	}
	logger.Infow("frontend finished", "keyframes", store.Len())
	return nil
}

func exceedsThresholds(last, cur spatialmath.Pose, cfg Config) bool {
	rel := spatialmath.PoseBetween(last, cur)
	if rel.Point().Norm() > cfg.DistThreshold {
		return true
	}
	return spatialmath.RotationLog(rel.Rotation()).Norm() > cfg.AngleThreshold
}
