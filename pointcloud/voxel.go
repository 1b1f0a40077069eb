package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// VoxelCoords stores voxel coordinates in the grid axes.
type VoxelCoords struct {
	I, J, K int64
}

// IsEqual tests if two VoxelCoords are the same.
func (c VoxelCoords) IsEqual(c2 VoxelCoords) bool {
	return c.I == c2.I && c.J == c2.J && c.K == c2.K
}

// GetVoxelCoords computes the voxel coordinates of a point in a grid with
// the given voxel size.
func GetVoxelCoords(pt r3.Vector, voxelSize float64) VoxelCoords {
	return VoxelCoords{
		I: int64(math.Floor(pt.X / voxelSize)),
		J: int64(math.Floor(pt.Y / voxelSize)),
		K: int64(math.Floor(pt.Z / voxelSize)),
	}
}

type voxelAccum struct {
	sum       r3.Vector
	intensity float64
	n         int
	ring      int
}

// VoxelDownsample returns a cloud with one point per occupied voxel, each
// placed at the centroid of the points that fell into it.
func VoxelDownsample(cloud PointCloud, voxelSize float64) PointCloud {
	if voxelSize <= 0 {
		return cloud
	}
	accum := make(map[VoxelCoords]*voxelAccum)
	cloud.Iterate(func(p r3.Vector, d Data) bool {
		k := GetVoxelCoords(p, voxelSize)
		a, ok := accum[k]
		if !ok {
			a = &voxelAccum{ring: d.Ring}
			accum[k] = a
		}
		a.sum = a.sum.Add(p)
		a.intensity += d.Intensity
		a.n++
		return true
	})
	out := NewWithPrealloc(len(accum))
	for _, a := range accum {
		inv := 1.0 / float64(a.n)
		//nolint:errcheck
		out.Set(a.sum.Mul(inv), Data{Intensity: a.intensity * inv, Ring: a.ring})
	}
	return out
}
