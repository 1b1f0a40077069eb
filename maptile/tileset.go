package maptile

import (
	"os"
	"path/filepath"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
)

const (
	// loadRadius is the Chebyshev radius of the neighborhood kept loaded
	// around the current tile (1 means the 3x3 block).
	loadRadius = 1
	// unloadRadius is the key distance beyond which a resident tile is
	// evicted. Strictly larger than loadRadius so a vehicle sitting on a
	// tile boundary never evicts and reloads the same tile.
	unloadRadius = 3.0
)

// TileSet serves the localizer a demand-loaded neighborhood of map tiles
// and maintains the aggregate registration target built from them.
type TileSet struct {
	dir    string
	logger golog.Logger
	clock  clock.Clock

	index     map[Key]struct{}
	resident  map[Key]pointcloud.PointCloud
	aggregate pointcloud.PointCloud
}

// OpenTileSet opens an exported map directory and reads its index.
// Nothing is loaded until the first Update.
func OpenTileSet(dir string, logger golog.Logger) (*TileSet, error) {
	keys, err := ReadIndex(dir)
	if err != nil {
		return nil, err
	}
	index := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		index[k] = struct{}{}
	}
	return &TileSet{
		dir:       dir,
		logger:    logger,
		clock:     clock.New(),
		index:     index,
		resident:  map[Key]pointcloud.PointCloud{},
		aggregate: pointcloud.New(),
	}, nil
}

// Update loads the tile neighborhood around the position and evicts tiles
// that fell out of the unload radius. When residency changed, the
// aggregate target is rebuilt. Returns whether it changed.
func (ts *TileSet) Update(pos r3.Vector) (bool, error) {
	center := KeyForPoint(pos)
	changed := false

	for dx := int64(-loadRadius); dx <= loadRadius; dx++ {
		for dy := int64(-loadRadius); dy <= loadRadius; dy++ {
			k := Key{X: center.X + dx, Y: center.Y + dy}
			if _, ok := ts.resident[k]; ok {
				continue
			}
			if _, ok := ts.index[k]; !ok {
				// the map may simply not extend here
				continue
			}
			cloud, err := pointcloud.NewFromFile(filepath.Join(ts.dir, k.FileName()))
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return false, err
			}
			ts.resident[k] = cloud
			changed = true
			ts.logger.Debugw("tile loaded", "key", k, "points", cloud.Size())
		}
	}

	for k := range ts.resident {
		if k.Dist(center) > unloadRadius {
			delete(ts.resident, k)
			changed = true
			ts.logger.Debugw("tile evicted", "key", k)
		}
	}

	if changed {
		ts.rebuild()
	}
	return changed, nil
}

// rebuild reassembles the aggregate target from the resident tiles. This
// dominates the cycle cost, so it is timed.
func (ts *TileSet) rebuild() {
	start := ts.clock.Now()
	total := 0
	for _, tile := range ts.resident {
		total += tile.Size()
	}
	agg := pointcloud.NewWithPrealloc(total)
	for _, tile := range ts.resident {
		tile.Iterate(func(p r3.Vector, d pointcloud.Data) bool {
			//nolint:errcheck
			agg.Set(p, d)
			return true
		})
	}
	ts.aggregate = agg
	ts.logger.Debugw("tile aggregate rebuilt",
		"tiles", len(ts.resident), "points", agg.Size(), "took", ts.clock.Since(start))
}

// Aggregate returns the current registration target. Empty until the
// first Update that finds tiles.
func (ts *TileSet) Aggregate() pointcloud.PointCloud {
	return ts.aggregate
}

// Resident reports whether the tile is currently loaded.
func (ts *TileSet) Resident(k Key) bool {
	_, ok := ts.resident[k]
	return ok
}

// ResidentCount returns the number of loaded tiles.
func (ts *TileSet) ResidentCount() int {
	return len(ts.resident)
}
