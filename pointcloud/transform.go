package pointcloud

import (
	"github.com/golang/geo/r3"

	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// ApplyPose returns a new cloud with every point transformed by the pose.
func ApplyPose(cloud PointCloud, pose spatialmath.Pose) PointCloud {
	out := NewWithPrealloc(cloud.Size())
	cloud.Iterate(func(p r3.Vector, d Data) bool {
		//nolint:errcheck
		out.Set(pose.Transform(p), d)
		return true
	})
	return out
}

// MergeInto copies every point of src into dst, transformed by the pose.
func MergeInto(dst, src PointCloud, pose spatialmath.Pose) {
	src.Iterate(func(p r3.Vector, d Data) bool {
		//nolint:errcheck
		dst.Set(pose.Transform(p), d)
		return true
	})
}

// RemoveGround filters out points at or below the given height in the
// cloud's own frame. Used before loop-closure registration so the flat
// ground plane cannot dominate the match.
func RemoveGround(cloud PointCloud, zThreshold float64) PointCloud {
	out := New()
	cloud.Iterate(func(p r3.Vector, d Data) bool {
		if p.Z > zThreshold {
			//nolint:errcheck
			out.Set(p, d)
		}
		return true
	})
	return out
}

// Points returns the positions in the cloud as a slice.
func Points(cloud PointCloud) []r3.Vector {
	pts := make([]r3.Vector, 0, cloud.Size())
	cloud.Iterate(func(p r3.Vector, d Data) bool {
		pts = append(pts, p)
		return true
	})
	return pts
}
