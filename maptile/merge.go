package maptile

import (
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// Merge reassembles an exported tile directory into a single cloud and
// writes it to outPath as a compressed PCD.
func Merge(dir, outPath string, logger golog.Logger) error {
	keys, err := ReadIndex(dir)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return errors.Errorf("tile index in %q is empty", dir)
	}

	merged := pointcloud.New()
	for _, k := range keys {
		tile, err := pointcloud.NewFromFile(filepath.Join(dir, k.FileName()))
		if err != nil {
			return errors.Wrapf(err, "loading tile %s", k)
		}
		pointcloud.MergeInto(merged, tile, spatialmath.NewZeroPose())
		logger.Debugw("tile merged", "key", k, "points", tile.Size())
	}

	if err := pointcloud.WriteToFile(merged, outPath, pointcloud.PCDCompressed); err != nil {
		return errors.Wrap(err, "writing merged map")
	}
	logger.Infow("map merged", "tiles", len(keys), "points", merged.Size(), "out", outPath)
	return nil
}
