package posegraph

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// WriteG2O writes the problem in the g2o text format: VERTEX_SE3:QUAT per
// keyframe, EDGE_SE3:QUAT per binary factor, and EDGE_SE3_PRIOR per
// absolute factor, with diagonal information matrices recovered from the
// factor weights.
func WriteG2O(problem *Problem, w io.Writer) error {
	bw := bufio.NewWriter(w)

	for i, p := range problem.Poses {
		tr := p.Point()
		q := p.Rotation()
		fmt.Fprintf(bw, "VERTEX_SE3:QUAT %d %.9f %.9f %.9f %.9f %.9f %.9f %.9f\n",
			i, tr.X, tr.Y, tr.Z, q.Imag, q.Jmag, q.Kmag, q.Real)
	}

	// the prior edges reference a sensor offset parameter
	hasAbs := false
	for _, f := range problem.Factors {
		if f.Kind == FactorAbsolutePosition || f.Kind == FactorAbsolutePose {
			hasAbs = true
			break
		}
	}
	if hasAbs {
		fmt.Fprintf(bw, "PARAMS_SE3OFFSET 0 0 0 0 0 0 0 1\n")
	}

	for _, f := range problem.Factors {
		switch f.Kind {
		case FactorAbsolutePosition:
			fmt.Fprintf(bw, "EDGE_SE3_PRIOR %d 0 %.9f %.9f %.9f 0 0 0 1", f.I,
				f.ObsPos.X, f.ObsPos.Y, f.ObsPos.Z)
			writeInfoUpper(bw, f.WTrans*f.WTrans, 0)
		case FactorAbsolutePose:
			tr := f.Obs.Point()
			q := f.Obs.Rotation()
			fmt.Fprintf(bw, "EDGE_SE3_PRIOR %d 0 %.9f %.9f %.9f %.9f %.9f %.9f %.9f", f.I,
				tr.X, tr.Y, tr.Z, q.Imag, q.Jmag, q.Kmag, q.Real)
			writeInfoUpper(bw, f.WTrans*f.WTrans, f.WRot*f.WRot)
		case FactorRelativeMotion, FactorLoopClosure:
			tr := f.Obs.Point()
			q := f.Obs.Rotation()
			fmt.Fprintf(bw, "EDGE_SE3:QUAT %d %d %.9f %.9f %.9f %.9f %.9f %.9f %.9f",
				f.I, f.J, tr.X, tr.Y, tr.Z, q.Imag, q.Jmag, q.Kmag, q.Real)
			writeInfoUpper(bw, f.WTrans*f.WTrans, f.WRot*f.WRot)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// writeInfoUpper emits the 21 upper-triangular entries of a diagonal 6x6
// information matrix with the given translation and rotation precisions.
func writeInfoUpper(w io.Writer, infoTrans, infoRot float64) {
	diag := [6]float64{infoTrans, infoTrans, infoTrans, infoRot, infoRot, infoRot}
	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			if i == j {
				fmt.Fprintf(w, " %.9f", diag[i])
			} else {
				fmt.Fprint(w, " 0")
			}
		}
	}
}

// ExportG2O writes the problem to the named file.
func ExportG2O(problem *Problem, path string) error {
	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return errors.Wrap(err, "cannot create g2o file")
	}
	if err := WriteG2O(problem, f); err != nil {
		f.Close() //nolint:errcheck,gosec
		return err
	}
	return f.Close()
}
