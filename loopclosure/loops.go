package loopclosure

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// LoopsFileName is the accepted-match file written next to keyframes.txt.
const LoopsFileName = "loops.txt"

// WriteLoops writes one line per accepted match: id1, id2, score, then the
// relative pose as a translation plus a unit quaternion (w x y z).
func WriteLoops(matches []Match, path string) error {
	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return errors.Wrap(err, "cannot create loops file")
	}
	w := bufio.NewWriter(f)
	for _, m := range matches {
		tr := m.Rel.Point()
		q := m.Rel.Rotation()
		fmt.Fprintf(w, "%d %d %.9f %.9f %.9f %.9f %.9f %.9f %.9f %.9f\n",
			m.I, m.J, m.Score, tr.X, tr.Y, tr.Z, q.Real, q.Imag, q.Jmag, q.Kmag)
	}
	if err := w.Flush(); err != nil {
		f.Close() //nolint:errcheck,gosec
		return err
	}
	return f.Close()
}

// ReadLoops reads a file written by WriteLoops.
func ReadLoops(path string) ([]Match, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, "cannot open loops file")
	}
	defer f.Close() //nolint:errcheck

	var out []Match
	sc := bufio.NewScanner(f)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		m, err := parseLoopLine(line)
		if err != nil {
			return nil, errors.Wrapf(err, "loops file line %d", lineNum)
		}
		out = append(out, m)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseLoopLine(line string) (Match, error) {
	fields := strings.Fields(line)
	if len(fields) != 10 {
		return Match{}, errors.Errorf("expected 10 fields, got %d", len(fields))
	}
	vals := make([]float64, len(fields))
	for i, tok := range fields {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return Match{}, errors.Wrapf(err, "field %d", i)
		}
		vals[i] = v
	}
	return Match{
		Candidate: Candidate{I: int64(vals[0]), J: int64(vals[1])},
		Score:     vals[2],
		Rel: spatialmath.NewPose(
			r3.Vector{X: vals[3], Y: vals[4], Z: vals[5]},
			quat.Number{Real: vals[6], Imag: vals[7], Jmag: vals[8], Kmag: vals[9]},
		),
	}, nil
}
