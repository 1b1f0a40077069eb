// Package config loads the offline mapping and online localization tool
// configurations from JSON files. Fields omitted from a file keep their
// defaults, so partial configs are safe; an empty path means all defaults.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/gaoxiang12/slam-in-ad-en/frontend"
	"github.com/gaoxiang12/slam-in-ad-en/fusion"
	"github.com/gaoxiang12/slam-in-ad-en/loopclosure"
	"github.com/gaoxiang12/slam-in-ad-en/maptile"
	"github.com/gaoxiang12/slam-in-ad-en/posegraph"
)

// MappingConfig tunes the offline pipeline stages.
type MappingConfig struct {
	// frontend
	KeyframeDistance *float64 `json:"keyframe_distance,omitempty"`
	KeyframeAngle    *float64 `json:"keyframe_angle,omitempty"`

	// optimizer
	AbsHasOrientation *bool    `json:"abs_has_orientation,omitempty"`
	AbsNoise          *float64 `json:"abs_noise,omitempty"`
	AbsRotNoise       *float64 `json:"abs_rot_noise,omitempty"`
	OdomTransNoise    *float64 `json:"odom_trans_noise,omitempty"`
	OdomRotNoise      *float64 `json:"odom_rot_noise,omitempty"`

	// loop closure
	LoopMinDistance    *float64 `json:"loop_min_distance,omitempty"`
	LoopMinIDInterval  *int64   `json:"loop_min_id_interval,omitempty"`
	LoopSkipID         *int64   `json:"loop_skip_id,omitempty"`
	LoopScoreThreshold *float64 `json:"loop_score_threshold,omitempty"`

	// tiler
	TileScanVoxel *float64 `json:"tile_scan_voxel,omitempty"`
	TileVoxel     *float64 `json:"tile_voxel,omitempty"`
}

// Frontend returns the keyframe extraction thresholds.
func (c *MappingConfig) Frontend() frontend.Config {
	cfg := frontend.DefaultConfig()
	setFloat(&cfg.DistThreshold, c.KeyframeDistance)
	setFloat(&cfg.AngleThreshold, c.KeyframeAngle)
	return cfg
}

// Stage returns the pose-graph noise model.
func (c *MappingConfig) Stage() posegraph.StageConfig {
	cfg := posegraph.DefaultStageConfig()
	if c.AbsHasOrientation != nil {
		cfg.AbsHasOrientation = *c.AbsHasOrientation
	}
	setFloat(&cfg.AbsNoise, c.AbsNoise)
	setFloat(&cfg.AbsRotNoise, c.AbsRotNoise)
	setFloat(&cfg.OdomTransNoise, c.OdomTransNoise)
	setFloat(&cfg.OdomRotNoise, c.OdomRotNoise)
	return cfg
}

// Loop returns the loop-closure detector parameters.
func (c *MappingConfig) Loop() loopclosure.Config {
	cfg := loopclosure.DefaultConfig()
	setFloat(&cfg.MinDistance, c.LoopMinDistance)
	setInt64(&cfg.MinIDInterval, c.LoopMinIDInterval)
	setInt64(&cfg.SkipID, c.LoopSkipID)
	setFloat(&cfg.ScoreThreshold, c.LoopScoreThreshold)
	return cfg
}

// Export returns the map tiler parameters.
func (c *MappingConfig) Export() maptile.ExportConfig {
	cfg := maptile.DefaultExportConfig()
	setFloat(&cfg.ScanVoxelSize, c.TileScanVoxel)
	setFloat(&cfg.TileVoxelSize, c.TileVoxel)
	return cfg
}

// FusionConfig tunes the online localizer.
type FusionConfig struct {
	SearchAngleStep   *float64 `json:"search_angle_step,omitempty"` // radians
	RTKSearchMinScore *float64 `json:"rtk_search_min_score,omitempty"`
	ScanVoxel         *float64 `json:"scan_voxel,omitempty"`
	NDTResolution     *float64 `json:"ndt_resolution,omitempty"`
	RegTransNoise     *float64 `json:"reg_trans_noise,omitempty"`
	RegRotNoise       *float64 `json:"reg_rot_noise,omitempty"`
}

// Localizer returns the fusion localizer parameters.
func (c *FusionConfig) Localizer() fusion.Config {
	cfg := fusion.DefaultConfig()
	setFloat(&cfg.SearchAngleStep, c.SearchAngleStep)
	setFloat(&cfg.RTKSearchMinScore, c.RTKSearchMinScore)
	setFloat(&cfg.VoxelSize, c.ScanVoxel)
	setFloat(&cfg.NDTResolution, c.NDTResolution)
	setFloat(&cfg.RegTransNoise, c.RegTransNoise)
	setFloat(&cfg.RegRotNoise, c.RegRotNoise)
	return cfg
}

// LoadMapping reads a mapping config. An empty path yields defaults.
func LoadMapping(path string) (*MappingConfig, error) {
	cfg := &MappingConfig{}
	if path == "" {
		return cfg, nil
	}
	return cfg, loadJSON(path, cfg)
}

// LoadFusion reads a fusion config. An empty path yields defaults.
func LoadFusion(path string) (*FusionConfig, error) {
	cfg := &FusionConfig{}
	if path == "" {
		return cfg, nil
	}
	return cfg, loadJSON(path, cfg)
}

func loadJSON(path string, v interface{}) error {
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".json" {
		return errors.Errorf("config file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(clean) //nolint:gosec
	if err != nil {
		return errors.Wrap(err, "cannot read config file")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "cannot parse config JSON")
	}
	return nil
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setInt64(dst *int64, src *int64) {
	if src != nil {
		*dst = *src
	}
}
