// Package maptile partitions the optimized global map into fixed-size
// planar grid tiles, persists them with an index, and serves a
// demand-loaded tile neighborhood to the online localizer.
package maptile

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// TileSize is the tile edge length in meters. Tiles are offset by half a
// tile so that the origin sits in the middle of tile (-1,-1)..(0,0)
// corners rather than on one.
const TileSize = 100.0

// Key identifies one tile of the planar grid.
type Key struct {
	X, Y int64
}

// KeyForPoint returns the key of the tile containing the point.
func KeyForPoint(p r3.Vector) Key {
	return Key{
		X: int64(math.Floor((p.X - TileSize/2) / TileSize)),
		Y: int64(math.Floor((p.Y - TileSize/2) / TileSize)),
	}
}

// Dist is the Euclidean norm of the key difference, in tiles.
func (k Key) Dist(o Key) float64 {
	dx := float64(k.X - o.X)
	dy := float64(k.Y - o.Y)
	return math.Hypot(dx, dy)
}

// FileName returns the tile's PCD file name.
func (k Key) FileName() string {
	return fmt.Sprintf("%d_%d.pcd", k.X, k.Y)
}

func (k Key) String() string {
	return fmt.Sprintf("(%d,%d)", k.X, k.Y)
}
