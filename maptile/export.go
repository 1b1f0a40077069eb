package maptile

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gaoxiang12/slam-in-ad-en/keyframe"
	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
)

// IndexName lists the keys of every generated tile.
const IndexName = "map_index.txt"

// ExportConfig holds the tiler parameters.
type ExportConfig struct {
	// ScanVoxelSize thins each keyframe cloud before bucketing.
	ScanVoxelSize float64
	// TileVoxelSize thins each finished tile before it is written.
	TileVoxelSize float64
}

// DefaultExportConfig returns the tiler parameters used by the pipeline.
func DefaultExportConfig() ExportConfig {
	return ExportConfig{ScanVoxelSize: 0.5, TileVoxelSize: 0.5}
}

// Export transforms every keyframe cloud by its stage-2 pose, buckets the
// points into tiles, and writes one compressed PCD per tile plus the
// index. Tile writes fan out across the CPUs; bucketing stays sequential
// because keyframe clouds are loaded and released one at a time.
func Export(ctx context.Context, store *keyframe.Store, dir string, cfg ExportConfig, logger golog.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "cannot create tile dir %q", dir)
	}

	tiles := map[Key]pointcloud.PointCloud{}
	var buildErr error
	store.Each(func(kf *keyframe.Keyframe) bool {
		if err := ctx.Err(); err != nil {
			buildErr = err
			return false
		}
		cloud, err := store.LoadCloud(kf.ID)
		if err != nil {
			buildErr = err
			return false
		}
		world := pointcloud.ApplyPose(cloud, kf.Opti2)
		store.ReleaseCloud(kf.ID)
		thinned := pointcloud.VoxelDownsample(world, cfg.ScanVoxelSize)
		thinned.Iterate(func(p r3.Vector, d pointcloud.Data) bool {
			k := KeyForPoint(p)
			tile, ok := tiles[k]
			if !ok {
				tile = pointcloud.New()
				tiles[k] = tile
			}
			//nolint:errcheck
			tile.Set(p, d)
			return true
		})
		return true
	})
	if buildErr != nil {
		return buildErr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for k, tile := range tiles {
		k, tile := k, tile
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			final := pointcloud.VoxelDownsample(tile, cfg.TileVoxelSize)
			path := filepath.Join(dir, k.FileName())
			if err := pointcloud.WriteToFile(final, path, pointcloud.PCDCompressed); err != nil {
				return errors.Wrapf(err, "writing tile %s", k)
			}
			logger.Debugw("tile written", "key", k, "points", final.Size())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := writeIndex(dir, tiles); err != nil {
		return err
	}
	logger.Infow("map tiles exported", "dir", dir, "tiles", len(tiles))
	return nil
}

func writeIndex(dir string, tiles map[Key]pointcloud.PointCloud) error {
	f, err := os.Create(filepath.Join(dir, IndexName))
	if err != nil {
		return errors.Wrap(err, "cannot create tile index")
	}
	w := bufio.NewWriter(f)
	for k := range tiles {
		fmt.Fprintf(w, "%d %d\n", k.X, k.Y)
	}
	if err := w.Flush(); err != nil {
		f.Close() //nolint:errcheck,gosec
		return err
	}
	return f.Close()
}

// ReadIndex reads the tile index of an exported map directory.
func ReadIndex(dir string) ([]Key, error) {
	f, err := os.Open(filepath.Join(dir, IndexName)) //nolint:gosec
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open tile index in %q", dir)
	}
	defer f.Close() //nolint:errcheck

	var keys []Key
	sc := bufio.NewScanner(f)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, errors.Errorf("tile index line %d: expected 2 fields, got %d", lineNum, len(fields))
		}
		x, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "tile index line %d", lineNum)
		}
		y, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "tile index line %d", lineNum)
		}
		keys = append(keys, Key{X: x, Y: y})
	}
	return keys, sc.Err()
}
