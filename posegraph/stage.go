package posegraph

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/gaoxiang12/slam-in-ad-en/keyframe"
	"github.com/gaoxiang12/slam-in-ad-en/registration"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// StageConfig holds the noise model and outlier parameters of the
// two-stage optimization.
type StageConfig struct {
	Solve SolveConfig

	OdomTransNoise float64 // meters
	OdomRotNoise   float64 // radians
	AbsNoise       float64 // meters
	AbsRotNoise    float64 // radians, orientation-bearing fixes only
	LoopTransNoise float64
	LoopRotNoise   float64

	HuberDelta    float64
	Chi2Threshold float64

	// AbsHasOrientation reports whether the absolute sensor provides
	// heading. When it does, each fix becomes a 6-DoF pose constraint;
	// when it does not, fixes constrain translation only and stage 1
	// estimates the single global heading offset between the odometry
	// and absolute frames instead.
	AbsHasOrientation bool
}

// DefaultStageConfig returns the noise model used by the pipeline.
func DefaultStageConfig() StageConfig {
	return StageConfig{
		Solve:          DefaultSolveConfig(),
		OdomTransNoise: 0.1,
		OdomRotNoise:   0.01,
		AbsNoise:       0.5,
		AbsRotNoise:    0.05,
		LoopTransNoise: 0.3,
		LoopRotNoise:   0.05,
		HuberDelta:     2.0,
		Chi2Threshold:  7.815, // chi-square 95%, 3 DoF
	}
}

// LoopConstraint is an accepted loop candidate expressed as a graph
// constraint: Rel takes keyframe I's frame to keyframe J's.
type LoopConstraint struct {
	I, J int64
	Rel  spatialmath.Pose
}

// RunStage1 optimizes odometry against absolute fixes, detects outlier
// fixes, and writes Opti1 on every keyframe. Returns the number of fixes
// rejected as outliers.
func RunStage1(store *keyframe.Store, cfg StageConfig, logger golog.Logger) (int, error) {
	frames := collect(store)
	if len(frames) < 2 {
		return 0, errors.Errorf("need at least 2 keyframes, have %d", len(frames))
	}

	seeds := make([]spatialmath.Pose, len(frames))
	for i, kf := range frames {
		seeds[i] = kf.Odom
	}

	var validCount int
	for _, kf := range frames {
		if kf.AbsValid {
			validCount++
		}
	}

	// with an orientation-free absolute sensor the odometry frame is
	// rotated from the absolute frame by an unknown global heading;
	// align the two trajectories and rotate the seeds into place
	if !cfg.AbsHasOrientation && validCount >= 2 {
		var odomXY, absXY []r3.Vector
		for _, kf := range frames {
			if kf.AbsValid {
				odomXY = append(odomXY, kf.Odom.Point())
				absXY = append(absXY, kf.Abs.Point())
			}
		}
		if g, ok := registration.AlignTrajectories2D(odomXY, absXY); ok {
			logger.Infow("global heading alignment",
				"yaw", spatialmath.Yaw(g.Rotation()), "pairs", len(odomXY))
			for i := range seeds {
				seeds[i] = spatialmath.Compose(g, frames[i].Odom)
			}
		}
	}

	factors := buildOdomFactors(frames, cfg)
	absFactors := buildAbsFactors(frames, cfg, true)
	problem := &Problem{
		Poses:    seeds,
		Factors:  append(factors, absFactors...),
		FixFirst: validCount == 0,
	}
	if err := problem.Solve(cfg.Solve, logger); err != nil {
		return 0, err
	}

	// fixes whose residual stayed large under the robust kernel are
	// genuinely inconsistent; drop them and refit without robustification
	outliers := 0
	if len(absFactors) > 0 {
		chi2s := make([]float64, len(absFactors))
		for i, f := range absFactors {
			chi2s[i] = FactorChi2(problem.Poses, f, cfg.Solve.Extrinsic)
		}
		median, err := stats.Median(chi2s)
		if err != nil {
			return 0, err
		}
		threshold := cfg.Chi2Threshold
		if adaptive := 3 * median; adaptive > threshold {
			threshold = adaptive
		}
		for i, f := range absFactors {
			if chi2s[i] > threshold {
				frames[f.I].AbsValid = false
				outliers++
				logger.Debugw("absolute fix rejected", "keyframe", f.I, "chi2", chi2s[i])
			}
		}
		// refit without kernels on the retained edges
		problem.Factors = append(buildOdomFactors(frames, cfg), buildAbsFactors(frames, cfg, false)...)
		if err := problem.Solve(cfg.Solve, logger); err != nil {
			return 0, err
		}
	}

	for i, kf := range frames {
		kf.Opti1 = problem.Poses[i]
	}
	logger.Infow("stage 1 complete", "keyframes", len(frames), "outlier fixes", outliers)
	return outliers, nil
}

// RunStage2 rebuilds the stage-1 structure seeded from Opti1, adds the
// loop constraints, solves once, and writes Opti2 on every keyframe. The
// returned problem can be exported with WriteG2O.
func RunStage2(store *keyframe.Store, loops []LoopConstraint, cfg StageConfig, logger golog.Logger) (*Problem, error) {
	frames := collect(store)
	if len(frames) < 2 {
		return nil, errors.Errorf("need at least 2 keyframes, have %d", len(frames))
	}

	seeds := make([]spatialmath.Pose, len(frames))
	validCount := 0
	for i, kf := range frames {
		seeds[i] = kf.Opti1
		if kf.AbsValid {
			validCount++
		}
	}

	factors := append(buildOdomFactors(frames, cfg), buildAbsFactors(frames, cfg, true)...)
	for _, lc := range loops {
		if lc.I < 0 || lc.J >= int64(len(frames)) || lc.I >= lc.J {
			return nil, errors.Errorf("loop constraint %d-%d out of range", lc.I, lc.J)
		}
		factors = append(factors, &Factor{
			Kind:       FactorLoopClosure,
			I:          lc.I,
			J:          lc.J,
			Obs:        lc.Rel,
			WTrans:     1 / cfg.LoopTransNoise,
			WRot:       1 / cfg.LoopRotNoise,
			Robust:     true,
			HuberDelta: cfg.HuberDelta,
		})
	}

	problem := &Problem{Poses: seeds, Factors: factors, FixFirst: validCount == 0}
	if err := problem.Solve(cfg.Solve, logger); err != nil {
		return nil, err
	}

	for i, kf := range frames {
		kf.Opti2 = problem.Poses[i]
	}
	logger.Infow("stage 2 complete", "keyframes", len(frames), "loops", len(loops))
	return problem, nil
}

func collect(store *keyframe.Store) []*keyframe.Keyframe {
	frames := make([]*keyframe.Keyframe, 0, store.Len())
	store.Each(func(kf *keyframe.Keyframe) bool {
		frames = append(frames, kf)
		return true
	})
	return frames
}

func buildOdomFactors(frames []*keyframe.Keyframe, cfg StageConfig) []*Factor {
	factors := make([]*Factor, 0, len(frames)-1)
	for i := 1; i < len(frames); i++ {
		factors = append(factors, &Factor{
			Kind:   FactorRelativeMotion,
			I:      int64(i - 1),
			J:      int64(i),
			Obs:    spatialmath.PoseBetween(frames[i-1].Odom, frames[i].Odom),
			WTrans: 1 / cfg.OdomTransNoise,
			WRot:   1 / cfg.OdomRotNoise,
		})
	}
	return factors
}

func buildAbsFactors(frames []*keyframe.Keyframe, cfg StageConfig, robust bool) []*Factor {
	var factors []*Factor
	for i, kf := range frames {
		if !kf.AbsValid {
			continue
		}
		f := &Factor{
			I:          int64(i),
			WTrans:     1 / cfg.AbsNoise,
			Robust:     robust,
			HuberDelta: cfg.HuberDelta,
		}
		if cfg.AbsHasOrientation {
			f.Kind = FactorAbsolutePose
			f.Obs = kf.Abs
			f.WRot = 1 / cfg.AbsRotNoise
		} else {
			f.Kind = FactorAbsolutePosition
			f.ObsPos = kf.Abs.Point()
		}
		factors = append(factors, f)
	}
	return factors
}
