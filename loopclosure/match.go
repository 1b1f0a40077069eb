package loopclosure

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/gaoxiang12/slam-in-ad-en/keyframe"
	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/posegraph"
	"github.com/gaoxiang12/slam-in-ad-en/registration"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
	"github.com/gaoxiang12/slam-in-ad-en/utils"
)

// Match is a candidate that survived registration. Rel takes keyframe I's
// frame to keyframe J's.
type Match struct {
	Candidate
	Rel   spatialmath.Pose
	Score float64
}

// Register aligns every candidate in parallel, one result slot per
// candidate, and keeps those scoring above the threshold. No candidate
// depends on another, so the only shared state is the read side of the
// store.
func Register(
	ctx context.Context,
	store *keyframe.Store,
	cands []Candidate,
	cfg Config,
	logger golog.Logger,
) ([]Match, error) {
	slots := make([]Match, len(cands))
	fs := make([]utils.SimpleFunc, len(cands))
	for i, c := range cands {
		i, c := i, c
		fs[i] = func(ctx context.Context) error {
			m, err := registerOne(store, c, cfg)
			if err != nil {
				return err
			}
			slots[i] = m
			return nil
		}
	}
	elapsed, err := utils.RunInParallel(ctx, fs)
	if err != nil {
		return nil, err
	}

	kept := make([]Match, 0, len(slots))
	for _, m := range slots {
		if m.Score > cfg.ScoreThreshold {
			kept = append(kept, m)
		}
	}
	logger.Infow("loop candidates registered",
		"candidates", len(cands), "kept", len(kept), "elapsed", elapsed)
	return kept, nil
}

func registerOne(store *keyframe.Store, c Candidate, cfg Config) (Match, error) {
	kfI, ok := store.Get(c.I)
	if !ok {
		return Match{}, errors.Errorf("candidate references missing keyframe %d", c.I)
	}
	kfJ, ok := store.Get(c.J)
	if !ok {
		return Match{}, errors.Errorf("candidate references missing keyframe %d", c.J)
	}

	submap, err := buildSubmap(store, c.I, cfg)
	if err != nil {
		return Match{}, err
	}

	cloud, err := store.LoadCloud(c.J)
	if err != nil {
		return Match{}, err
	}
	source := pointcloud.RemoveGround(cloud, cfg.GroundZ)
	store.ReleaseCloud(c.J)

	// seed from the stage-1 estimate of where J sits in the world
	res := registration.AlignCoarseToFine(source, submap, kfJ.Opti1, cfg.Resolutions)
	return Match{
		Candidate: c,
		Rel:       spatialmath.PoseBetween(kfI.Opti1, res.Pose),
		Score:     res.Score,
	}, nil
}

// buildSubmap aggregates ground-filtered clouds of the keyframes around
// center into the stage-1 world frame. Missing ids at the sequence edges
// are skipped.
func buildSubmap(store *keyframe.Store, center int64, cfg Config) (pointcloud.PointCloud, error) {
	submap := pointcloud.New()
	for id := center - cfg.SubmapWindow; id <= center+cfg.SubmapWindow; id += cfg.SubmapStride {
		kf, ok := store.Get(id)
		if !ok {
			continue
		}
		cloud, err := store.LoadCloud(id)
		if err != nil {
			return nil, err
		}
		pointcloud.MergeInto(submap, pointcloud.RemoveGround(cloud, cfg.GroundZ), kf.Opti1)
		store.ReleaseCloud(id)
	}
	return submap, nil
}

// Constraints converts matches into the optimizer's loop constraints.
func Constraints(matches []Match) []posegraph.LoopConstraint {
	out := make([]posegraph.LoopConstraint, len(matches))
	for i, m := range matches {
		out[i] = posegraph.LoopConstraint{I: m.I, J: m.J, Rel: m.Rel}
	}
	return out
}
