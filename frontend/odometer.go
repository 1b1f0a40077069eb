package frontend

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/registration"
	"github.com/gaoxiang12/slam-in-ad-en/sensor"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// OdometerConfig tunes the direct NDT odometer.
type OdometerConfig struct {
	// VoxelSize thins each incoming scan.
	VoxelSize float64
	// Resolution is the local-map NDT cell size.
	Resolution float64
	// LocalMapSize caps how many recent scans form the local map.
	LocalMapSize int
	// MapDist and MapAngle gate which scans are pushed into the local map.
	MapDist  float64
	MapAngle float64
}

// DefaultOdometerConfig returns the odometer parameters used by the
// mapping runner.
func DefaultOdometerConfig() OdometerConfig {
	return OdometerConfig{
		VoxelSize:    0.5,
		Resolution:   1.0,
		LocalMapSize: 10,
		MapDist:      0.5,
		MapAngle:     0.26,
	}
}

// NDTOdometer is a direct LiDAR odometer: each scan is registered against
// an NDT model of the recent local map, seeded by a constant-velocity
// prediction. It satisfies Estimator; inertial samples are not used.
type NDTOdometer struct {
	cfg    OdometerConfig
	logger golog.Logger

	pose        spatialmath.Pose
	lastDelta   spatialmath.Pose
	lastMapPose spatialmath.Pose
	scan        pointcloud.PointCloud

	mapScans []pointcloud.PointCloud
	ndt      *registration.NDT
}

// NewNDTOdometer returns an odometer at the origin.
func NewNDTOdometer(cfg OdometerConfig, logger golog.Logger) *NDTOdometer {
	return &NDTOdometer{
		cfg:       cfg,
		logger:    logger,
		pose:      spatialmath.NewZeroPose(),
		lastDelta: spatialmath.NewZeroPose(),
	}
}

// AddIMU implements Estimator. The odometer is purely scan driven.
func (o *NDTOdometer) AddIMU(sensor.IMU) {}

// AddScan registers the scan and advances the pose estimate.
func (o *NDTOdometer) AddScan(scan sensor.Scan) error {
	if scan.Cloud == nil || scan.Cloud.Size() == 0 {
		return errors.New("empty scan")
	}
	src := pointcloud.VoxelDownsample(scan.Cloud, o.cfg.VoxelSize)
	o.scan = src

	if o.ndt == nil {
		o.pushToMap(src)
		return nil
	}

	seed := spatialmath.Compose(o.pose, o.lastDelta)
	res := o.ndt.Align(src, seed)
	o.lastDelta = spatialmath.PoseBetween(o.pose, res.Pose)
	o.pose = res.Pose

	rel := spatialmath.PoseBetween(o.lastMapPose, o.pose)
	if rel.Point().Norm() > o.cfg.MapDist ||
		spatialmath.RotationLog(rel.Rotation()).Norm() > o.cfg.MapAngle {
		o.pushToMap(src)
	}
	return nil
}

// Pose implements Estimator.
func (o *NDTOdometer) Pose() spatialmath.Pose { return o.pose }

// Scan implements Estimator, returning the thinned current scan.
func (o *NDTOdometer) Scan() pointcloud.PointCloud { return o.scan }

// pushToMap adds the scan at the current pose to the local map and
// rebuilds the NDT model from the retained scans.
func (o *NDTOdometer) pushToMap(src pointcloud.PointCloud) {
	world := pointcloud.ApplyPose(src, o.pose)
	o.mapScans = append(o.mapScans, world)
	if o.cfg.LocalMapSize > 0 && len(o.mapScans) > o.cfg.LocalMapSize {
		o.mapScans = o.mapScans[len(o.mapScans)-o.cfg.LocalMapSize:]
	}
	merged := pointcloud.New()
	for _, s := range o.mapScans {
		pointcloud.MergeInto(merged, s, spatialmath.NewZeroPose())
	}
	o.ndt = registration.BuildNDT(merged, o.cfg.Resolution)
	o.lastMapPose = o.pose
	o.logger.Debugw("local map refreshed", "scans", len(o.mapScans), "points", merged.Size())
}
