package fusion

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/sensor"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// Undistort compensates for vehicle motion during the sweep, re-expressing
// every point in the frame of the sweep's end. motion is the pose change
// of the body over one full Period. A point's time within the sweep is
// recovered from its azimuth, one revolution per sweep.
func Undistort(scan sensor.Scan, motion spatialmath.Pose) pointcloud.PointCloud {
	if scan.Period <= 0 || spatialmath.AlmostEqual(motion, spatialmath.NewZeroPose(), 1e-12) {
		return scan.Cloud
	}
	inv := spatialmath.PoseInverse(motion)
	zero := spatialmath.NewZeroPose()
	out := pointcloud.NewWithPrealloc(scan.Cloud.Size())
	scan.Cloud.Iterate(func(p r3.Vector, d pointcloud.Data) bool {
		frac := (math.Atan2(p.Y, p.X) + math.Pi) / (2 * math.Pi)
		correction := spatialmath.Compose(inv, spatialmath.Interpolate(zero, motion, frac))
		//nolint:errcheck
		out.Set(correction.Transform(p), d)
		return true
	})
	return out
}
