// Package pointcloud defines a point cloud for LiDAR data and provides an
// implementation for one, along with the PCD file IO and the voxel filters
// the mapping pipeline uses.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// Data holds the per-point payload beyond position.
type Data struct {
	Intensity float64
	Ring      int
}

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	HasIntensity bool

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64

	totalX, totalY, totalZ float64
}

// PointCloud is a general purpose container of points. The basic
// implementation is sparse and dictionary backed.
type PointCloud interface {
	// Size returns the number of points in the cloud.
	Size() int

	// MetaData returns meta data.
	MetaData() MetaData

	// Set places the given point in the cloud.
	Set(p r3.Vector, d Data) error

	// At returns the point in the cloud at the given position.
	// The 2nd return is whether the point exists.
	At(x, y, z float64) (Data, bool)

	// Iterate iterates over all points in the cloud and calls the given
	// function for each point. If the supplied function returns false,
	// iteration stops.
	Iterate(fn func(p r3.Vector, d Data) bool)
}

// NewMetaData returns a new MetaData.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64, MaxX: -math.MaxFloat64,
		MinY: math.MaxFloat64, MaxY: -math.MaxFloat64,
		MinZ: math.MaxFloat64, MaxZ: -math.MaxFloat64,
	}
}

// Merge updates the meta data with the new point.
func (meta *MetaData) Merge(v r3.Vector, data Data) {
	if data.Intensity != 0 {
		meta.HasIntensity = true
	}

	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}

	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}
	meta.totalX += v.X
	meta.totalY += v.Y
	meta.totalZ += v.Z
}

// TotalX returns the sum of all X coordinates seen so far.
func (meta *MetaData) TotalX() float64 { return meta.totalX }

// TotalY returns the sum of all Y coordinates seen so far.
func (meta *MetaData) TotalY() float64 { return meta.totalY }

// TotalZ returns the sum of all Z coordinates seen so far.
func (meta *MetaData) TotalZ() float64 { return meta.totalZ }
