package trajectory

import (
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// Interpolate produces the pose at the query time from a time-sorted series
// of arbitrary records, given a projection from record to pose, along with
// the bracketing record nearer in time to the query.
//
// Queries outside the stored time range are rejected on both sides; there
// is no extrapolation. A query exactly at a stored timestamp returns that
// record's pose.
func Interpolate[T any](query float64, series *Series[T], poseOf func(T) spatialmath.Pose) (spatialmath.Pose, Sample[T], bool) {
	var zero Sample[T]
	if series.Len() == 0 {
		return spatialmath.NewZeroPose(), zero, false
	}
	if query < series.First().Time || query > series.Last().Time {
		return spatialmath.NewZeroPose(), zero, false
	}

	i, j := series.bracket(query)
	lo, hi := series.samples[i], series.samples[j]
	if i == j || hi.Time == lo.Time || query == hi.Time {
		return poseOf(hi.Value), hi, true
	}

	s := (query - lo.Time) / (hi.Time - lo.Time)
	pose := spatialmath.Interpolate(poseOf(lo.Value), poseOf(hi.Value), s)
	nearest := hi
	if s < 0.5 {
		nearest = lo
	}
	return pose, nearest, true
}
