// Package gnss models absolute-position fixes from a satellite receiver and
// their time-sorted storage.
package gnss

import (
	"github.com/golang/geo/r3"

	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
	"github.com/gaoxiang12/slam-in-ad-en/trajectory"
)

// Fix is one absolute-position reading. UTM is the position in the UTM
// plane (meters); most receivers provide no orientation, in which case
// HasOrientation is false and Heading is meaningless.
type Fix struct {
	Time           float64
	UTM            r3.Vector
	HasOrientation bool
	Heading        float64 // radians, about +Z, only when HasOrientation
}

// Pose returns the fix as a pose. Orientation-free fixes yield a pure
// translation.
func (f Fix) Pose() spatialmath.Pose {
	if !f.HasOrientation {
		return spatialmath.NewPoseFromPoint(f.UTM)
	}
	return spatialmath.NewPoseFromYaw(f.UTM, f.Heading)
}

// Series is a time-sorted fix store. Near-simultaneous fixes are expected
// to be deduplicated by the source stream; equal timestamps replace.
type Series = trajectory.Series[Fix]

// NewSeries returns an empty fix series.
func NewSeries() *Series {
	return trajectory.NewSeries[Fix]()
}

// SubtractOrigin rebases every fix in the series so the first fix becomes
// the local map origin, returning that origin. An empty series returns a
// zero origin and makes no change.
func SubtractOrigin(s *Series) r3.Vector {
	if s.Len() == 0 {
		return r3.Vector{}
	}
	origin := s.First().Value.UTM
	rebased := NewSeries()
	s.Each(func(smp trajectory.Sample[Fix]) bool {
		f := smp.Value
		f.UTM = f.UTM.Sub(origin)
		rebased.Insert(smp.Time, f)
		return true
	})
	*s = *rebased
	return origin
}

// InterpolateAt returns the interpolated fix pose at the query time.
func InterpolateAt(s *Series, query float64) (spatialmath.Pose, Fix, bool) {
	pose, nearest, ok := trajectory.Interpolate(query, s, Fix.Pose)
	return pose, nearest.Value, ok
}
