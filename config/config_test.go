package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	test.That(t, os.WriteFile(path, []byte(body), 0o644), test.ShouldBeNil)
	return path
}

func TestLoadMappingDefaults(t *testing.T) {
	cfg, err := LoadMapping("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Frontend().DistThreshold, test.ShouldEqual, 0.5)
	test.That(t, cfg.Loop().MinIDInterval, test.ShouldEqual, 100)
	test.That(t, cfg.Stage().AbsHasOrientation, test.ShouldBeFalse)
}

func TestLoadMappingPartialOverride(t *testing.T) {
	path := writeConfig(t, "mapping.json",
		`{"keyframe_distance": 2.0, "loop_min_id_interval": 50, "abs_has_orientation": true, "abs_rot_noise": 0.02}`)
	cfg, err := LoadMapping(path)
	test.That(t, err, test.ShouldBeNil)

	fe := cfg.Frontend()
	test.That(t, fe.DistThreshold, test.ShouldEqual, 2.0)
	// untouched fields keep their defaults
	test.That(t, fe.AngleThreshold, test.ShouldEqual, 0.26)
	test.That(t, cfg.Loop().MinIDInterval, test.ShouldEqual, 50)
	test.That(t, cfg.Stage().AbsHasOrientation, test.ShouldBeTrue)
	test.That(t, cfg.Stage().AbsRotNoise, test.ShouldEqual, 0.02)
}

func TestLoadFusionPartialOverride(t *testing.T) {
	path := writeConfig(t, "fusion.json", `{"rtk_search_min_score": 0.5}`)
	cfg, err := LoadFusion(path)
	test.That(t, err, test.ShouldBeNil)
	loc := cfg.Localizer()
	test.That(t, loc.RTKSearchMinScore, test.ShouldEqual, 0.5)
	test.That(t, loc.NDTResolution, test.ShouldEqual, 1.0)
}

func TestLoadRejectsBadInput(t *testing.T) {
	_, err := LoadMapping(writeConfig(t, "mapping.txt", `{}`))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = LoadMapping(writeConfig(t, "broken.json", `{not json`))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = LoadFusion(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
