// Package keyframe holds the retained scan/pose records of a mapping run
// and their on-disk store.
package keyframe

import (
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// Keyframe is one retained vehicle pose plus scan, selected by motion
// thresholds. Ids are assigned by the store and strictly increase in
// creation order. The cloud payload lives in the store, not here, so a
// keyframe record stays cheap once its cloud has been evicted.
type Keyframe struct {
	ID        int64
	Timestamp float64

	Odom     spatialmath.Pose
	Abs      spatialmath.Pose
	AbsValid bool
	Opti1    spatialmath.Pose
	Opti2    spatialmath.Pose
}
