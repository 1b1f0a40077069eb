package sensor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
)

func TestReadLog(t *testing.T) {
	dir := t.TempDir()

	cloud := pointcloud.New()
	test.That(t, cloud.Set(r3.Vector{X: 1, Z: 2}, pointcloud.Data{Intensity: 3}), test.ShouldBeNil)
	test.That(t, pointcloud.WriteToFile(cloud, filepath.Join(dir, "0.pcd"), pointcloud.PCDBinary),
		test.ShouldBeNil)

	log := `# recorded run
GNSS 0.30 100.5 200.5 3.0
IMU 0.10 0.01 0.02 0.03 0.1 0.2 9.8
SCAN 0.20 0.1 0.pcd
GNSS 0.40 101.0 200.0 3.0 1.57
`
	path := filepath.Join(dir, "run.txt")
	test.That(t, os.WriteFile(path, []byte(log), 0o644), test.ShouldBeNil)

	msgs, err := ReadLog(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(msgs), test.ShouldEqual, 4)

	// sorted into time order
	imu, ok := msgs[0].(IMU)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, imu.Accel.Z, test.ShouldAlmostEqual, 9.8)

	scan, ok := msgs[1].(Scan)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, scan.Period, test.ShouldAlmostEqual, 0.1)
	test.That(t, scan.Cloud.Size(), test.ShouldEqual, 1)

	fix1, ok := msgs[2].(FixMessage)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, fix1.Fix.HasOrientation, test.ShouldBeFalse)

	fix2, ok := msgs[3].(FixMessage)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, fix2.Fix.HasOrientation, test.ShouldBeTrue)
	test.That(t, fix2.Fix.Heading, test.ShouldAlmostEqual, 1.57)
}

func TestReadLogRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.txt")
	test.That(t, os.WriteFile(path, []byte("IMU 0.1 0.2\n"), 0o644), test.ShouldBeNil)
	_, err := ReadLog(path)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, os.WriteFile(path, []byte("SONAR 0.1 0.2\n"), 0o644), test.ShouldBeNil)
	_, err = ReadLog(path)
	test.That(t, err, test.ShouldNotBeNil)
}
