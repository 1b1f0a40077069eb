package registration

import (
	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// DefaultResolutions is the coarse-to-fine schedule (meters) used by loop
// closure and the localization grid search.
var DefaultResolutions = []float64{10, 5, 4, 3}

// AlignCoarseToFine registers source against target by running NDT at
// successively finer resolutions, each stage seeded with the previous
// stage's pose and the coarsest seeded from init. The returned result is
// the finest stage's. An empty source or target scores zero.
func AlignCoarseToFine(source, target pointcloud.PointCloud, init spatialmath.Pose, resolutions []float64) Result {
	if source == nil || source.Size() == 0 || target == nil || target.Size() == 0 {
		return Result{Pose: init}
	}
	if len(resolutions) == 0 {
		resolutions = DefaultResolutions
	}
	pose := init
	res := Result{Pose: init}
	for _, r := range resolutions {
		ndt := BuildNDT(target, r)
		if ndt == nil {
			return Result{Pose: init}
		}
		// thin the source in proportion to the cell size
		src := pointcloud.VoxelDownsample(source, r/4)
		res = ndt.Align(src, pose)
		pose = res.Pose
	}
	return res
}
