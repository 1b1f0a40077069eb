package pointcloud

import (
	"github.com/golang/geo/r3"
)

// PointAndData pairs a position with its payload.
type PointAndData struct {
	P r3.Vector
	D Data
}

// basicPointCloud is the basic implementation of the PointCloud interface
// backed by a slice of points plus an index keyed by position.
type basicPointCloud struct {
	points   []PointAndData
	indexMap map[r3.Vector]uint
	meta     MetaData
}

// New returns an empty PointCloud backed by a basicPointCloud.
func New() PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty, preallocated PointCloud backed by a basicPointCloud.
func NewWithPrealloc(size int) PointCloud {
	return &basicPointCloud{
		points:   make([]PointAndData, 0, size),
		indexMap: make(map[r3.Vector]uint, size),
		meta:     NewMetaData(),
	}
}

func (cloud *basicPointCloud) Size() int {
	return len(cloud.points)
}

func (cloud *basicPointCloud) MetaData() MetaData {
	return cloud.meta
}

func (cloud *basicPointCloud) At(x, y, z float64) (Data, bool) {
	i, ok := cloud.indexMap[r3.Vector{X: x, Y: y, Z: z}]
	if !ok {
		return Data{}, false
	}
	return cloud.points[i].D, true
}

// Set places the given point in the cloud, replacing the payload if the
// position already exists.
func (cloud *basicPointCloud) Set(p r3.Vector, d Data) error {
	if i, ok := cloud.indexMap[p]; ok {
		cloud.points[i].D = d
		return nil
	}
	cloud.indexMap[p] = uint(len(cloud.points))
	cloud.points = append(cloud.points, PointAndData{P: p, D: d})
	cloud.meta.Merge(p, d)
	return nil
}

func (cloud *basicPointCloud) Iterate(fn func(p r3.Vector, d Data) bool) {
	for _, pd := range cloud.points {
		if !fn(pd.P, pd.D) {
			return
		}
	}
}
