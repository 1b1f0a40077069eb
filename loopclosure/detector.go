// Package loopclosure finds spatially close, temporally distant keyframe
// pairs in the stage-1 trajectory and validates each pair by registering
// the revisit scan against a local submap.
package loopclosure

import (
	"math"

	"github.com/gaoxiang12/slam-in-ad-en/keyframe"
	"github.com/gaoxiang12/slam-in-ad-en/registration"
)

// Config holds the detection and registration parameters.
type Config struct {
	// MinDistance is the planar distance (meters) under which two
	// keyframes count as a revisit.
	MinDistance float64
	// MinIDInterval is the smallest id gap a candidate pair may have.
	MinIDInterval int64
	// SkipID thins the search: after accepting a pair, pairs whose both
	// members lie within SkipID ids of the accepted ones are skipped.
	SkipID int64

	// SubmapWindow and SubmapStride select the keyframes aggregated into
	// the submap around the first member: every SubmapStride-th id within
	// +-SubmapWindow.
	SubmapWindow int64
	SubmapStride int64

	// GroundZ is the height below which points are dropped before
	// registration, in the scan's own frame.
	GroundZ float64

	// ScoreThreshold rejects registrations scoring at or below it.
	ScoreThreshold float64

	// Resolutions is the coarse-to-fine schedule.
	Resolutions []float64
}

// DefaultConfig returns the detector parameters used by the pipeline.
func DefaultConfig() Config {
	return Config{
		MinDistance:    30,
		MinIDInterval:  100,
		SkipID:         5,
		SubmapWindow:   40,
		SubmapStride:   4,
		GroundZ:        0.1,
		ScoreThreshold: 0.35,
		Resolutions:    registration.DefaultResolutions,
	}
}

// Candidate pairs keyframe I with a temporally distant revisit J (I < J).
type Candidate struct {
	I, J int64
}

// Detect scans the stage-1 trajectory for candidate pairs. The search is
// greedily thinned: once a pair is accepted, nearby pairs are skipped so
// one revisit does not flood the graph with near-duplicate constraints.
func Detect(store *keyframe.Store, cfg Config) []Candidate {
	var frames []*keyframe.Keyframe
	store.Each(func(kf *keyframe.Keyframe) bool {
		frames = append(frames, kf)
		return true
	})

	var out []Candidate
	var last *Candidate
	for i := range frames {
		for j := i + 1; j < len(frames); j++ {
			fi, fj := frames[i], frames[j]
			if fj.ID-fi.ID < cfg.MinIDInterval {
				continue
			}
			if last != nil &&
				absID(fi.ID-last.I) < cfg.SkipID && absID(fj.ID-last.J) < cfg.SkipID {
				continue
			}
			pi, pj := fi.Opti1.Point(), fj.Opti1.Point()
			if math.Hypot(pi.X-pj.X, pi.Y-pj.Y) < cfg.MinDistance {
				c := Candidate{I: fi.ID, J: fj.ID}
				out = append(out, c)
				last = &c
			}
		}
	}
	return out
}

func absID(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
