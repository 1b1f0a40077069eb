package sensor

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/gaoxiang12/slam-in-ad-en/gnss"
	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
)

// ReadLog reads a recorded text log and returns its messages in time
// order. Each line is one record:
//
//	IMU  <time> <gx> <gy> <gz> <ax> <ay> <az>
//	GNSS <time> <x> <y> <z> [<heading>]
//	SCAN <time> <period> <pcd-path>
//
// Scan paths are resolved relative to the log file's directory.
func ReadLog(path string) ([]Message, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, "cannot open sensor log")
	}
	defer f.Close() //nolint:errcheck

	dir := filepath.Dir(path)
	var msgs []Message
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		msg, err := parseLogLine(line, dir)
		if err != nil {
			return nil, errors.Wrapf(err, "sensor log line %d", lineNum)
		}
		msgs = append(msgs, msg)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Stamp() < msgs[j].Stamp()
	})
	return msgs, nil
}

func parseLogLine(line, dir string) (Message, error) {
	fields := strings.Fields(line)
	kind := fields[0]
	nums := make([]float64, 0, len(fields)-1)
	for _, tok := range fields[1:] {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			// the scan path is not numeric, leave it to the SCAN case
			break
		}
		nums = append(nums, v)
	}

	switch kind {
	case "IMU":
		if len(nums) != 7 {
			return nil, errors.Errorf("IMU record needs 7 values, got %d", len(nums))
		}
		return IMU{
			Time:  nums[0],
			Gyro:  r3.Vector{X: nums[1], Y: nums[2], Z: nums[3]},
			Accel: r3.Vector{X: nums[4], Y: nums[5], Z: nums[6]},
		}, nil
	case "GNSS":
		if len(nums) != 4 && len(nums) != 5 {
			return nil, errors.Errorf("GNSS record needs 4 or 5 values, got %d", len(nums))
		}
		fix := gnss.Fix{
			Time: nums[0],
			UTM:  r3.Vector{X: nums[1], Y: nums[2], Z: nums[3]},
		}
		if len(nums) == 5 {
			fix.HasOrientation = true
			fix.Heading = nums[4]
		}
		return FixMessage{Fix: fix}, nil
	case "SCAN":
		if len(fields) != 4 || len(nums) < 2 {
			return nil, errors.New("SCAN record needs time, period, and a path")
		}
		pcdPath := fields[3]
		if !filepath.IsAbs(pcdPath) {
			pcdPath = filepath.Join(dir, pcdPath)
		}
		cloud, err := pointcloud.NewFromFile(pcdPath)
		if err != nil {
			return nil, err
		}
		return Scan{Time: nums[0], Period: nums[1], Cloud: cloud}, nil
	default:
		return nil, errors.Errorf("unknown record kind %q", kind)
	}
}
