package keyframe

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// TableName is the pose-record file written next to the per-keyframe clouds.
const TableName = "keyframes.txt"

// WriteTable writes one line per keyframe: id, timestamp, absolute-pose
// validity, then four pose blocks (absolute, odometry, stage-1, stage-2),
// each a translation plus a unit quaternion (w x y z).
func (s *Store) WriteTable() error {
	f, err := os.Create(filepath.Join(s.dir, TableName))
	if err != nil {
		return errors.Wrap(err, "cannot create keyframe table")
	}
	w := bufio.NewWriter(f)
	s.Each(func(kf *Keyframe) bool {
		valid := 0
		if kf.AbsValid {
			valid = 1
		}
		fmt.Fprintf(w, "%d %.9f %d", kf.ID, kf.Timestamp, valid)
		for _, p := range []spatialmath.Pose{kf.Abs, kf.Odom, kf.Opti1, kf.Opti2} {
			tr := p.Point()
			q := p.Rotation()
			fmt.Fprintf(w, " %.9f %.9f %.9f %.9f %.9f %.9f %.9f",
				tr.X, tr.Y, tr.Z, q.Real, q.Imag, q.Jmag, q.Kmag)
		}
		fmt.Fprintln(w)
		return true
	})
	if err := w.Flush(); err != nil {
		f.Close() //nolint:errcheck,gosec
		return err
	}
	return f.Close()
}

// OpenStore opens an existing store directory and reads its keyframe table.
func OpenStore(dir string, logger golog.Logger) (*Store, error) {
	f, err := os.Open(filepath.Join(dir, TableName)) //nolint:gosec
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open keyframe table in %q", dir)
	}
	defer f.Close() //nolint:errcheck

	store, err := NewStore(dir, logger)
	if err != nil {
		return nil, err
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		kf, err := parseTableLine(line)
		if err != nil {
			return nil, errors.Wrapf(err, "keyframe table line %d", lineNum)
		}
		if kf.ID != int64(store.Len()) {
			return nil, errors.Errorf("keyframe table line %d: id %d out of order", lineNum, kf.ID)
		}
		store.mu.Lock()
		store.frames = append(store.frames, kf)
		store.mu.Unlock()
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	logger.Infow("keyframe store opened", "dir", dir, "keyframes", store.Len())
	return store, nil
}

func parseTableLine(line string) (*Keyframe, error) {
	fields := strings.Fields(line)
	if len(fields) != 3+4*7 {
		return nil, errors.Errorf("expected %d fields, got %d", 3+4*7, len(fields))
	}
	vals := make([]float64, len(fields))
	for i, tok := range fields {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "field %d", i)
		}
		vals[i] = v
	}
	kf := &Keyframe{
		ID:        int64(vals[0]),
		Timestamp: vals[1],
		AbsValid:  vals[2] != 0,
	}
	poses := make([]spatialmath.Pose, 4)
	for b := 0; b < 4; b++ {
		o := 3 + b*7
		poses[b] = spatialmath.NewPose(
			r3.Vector{X: vals[o], Y: vals[o+1], Z: vals[o+2]},
			quat.Number{Real: vals[o+3], Imag: vals[o+4], Jmag: vals[o+5], Kmag: vals[o+6]},
		)
	}
	kf.Abs, kf.Odom, kf.Opti1, kf.Opti2 = poses[0], poses[1], poses[2], poses[3]
	return kf, nil
}
