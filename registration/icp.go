package registration

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// ICPConfig holds the iteration and gating parameters for point-to-point
// ICP. Distances are in the units of the input clouds (meters).
type ICPConfig struct {
	MaxIterations     int
	ConvergenceThresh float64 // stop when mean error improves less than this
	MaxCorrespondDist float64 // gate for nearest-neighbor pairs
}

// DefaultICPConfig returns the parameters used by the mapping pipeline.
func DefaultICPConfig() ICPConfig {
	return ICPConfig{
		MaxIterations:     40,
		ConvergenceThresh: 1e-5,
		MaxCorrespondDist: 2.0,
	}
}

// RegisterICP aligns source to target starting from guess. The score is
// the inlier fraction at the final pose.
func RegisterICP(source, target pointcloud.PointCloud, guess spatialmath.Pose, cfg ICPConfig) Result {
	res := Result{Pose: guess}
	if source == nil || source.Size() == 0 || target == nil || target.Size() == 0 {
		return res
	}

	targetPts := make(kdtree.Points, 0, target.Size())
	target.Iterate(func(p r3.Vector, d pointcloud.Data) bool {
		targetPts = append(targetPts, kdtree.Point{p.X, p.Y, p.Z})
		return true
	})
	tree := kdtree.New(targetPts, false)

	srcPts := pointcloud.Points(source)
	pose := guess
	maxDistSq := cfg.MaxCorrespondDist * cfg.MaxCorrespondDist
	lastErr := math.MaxFloat64

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		var src, dst []r3.Vector
		errSum := 0.0
		for _, p := range srcPts {
			world := pose.Transform(p)
			got, distSq := tree.Nearest(kdtree.Point{world.X, world.Y, world.Z})
			if got == nil || distSq > maxDistSq {
				continue
			}
			q := got.(kdtree.Point)
			src = append(src, world)
			dst = append(dst, r3.Vector{X: q[0], Y: q[1], Z: q[2]})
			errSum += math.Sqrt(distSq)
		}
		res.Iterations = iter + 1
		if len(src) < 3 {
			res.Pose = pose
			return res
		}
		meanErr := errSum / float64(len(src))
		if lastErr-meanErr < cfg.ConvergenceThresh {
			res.Converged = true
			break
		}
		lastErr = meanErr

		inc, ok := svdAlign(src, dst)
		if !ok {
			break
		}
		pose = spatialmath.Compose(inc, pose)
	}

	res.Pose = pose
	inliers := 0
	for _, p := range srcPts {
		world := pose.Transform(p)
		if _, distSq := tree.Nearest(kdtree.Point{world.X, world.Y, world.Z}); distSq <= maxDistSq {
			inliers++
		}
	}
	res.Score = float64(inliers) / float64(len(srcPts))
	return res
}

// svdAlign returns the rigid transform taking src onto dst in the least
// squares sense (Kabsch).
func svdAlign(src, dst []r3.Vector) (spatialmath.Pose, bool) {
	n := float64(len(src))
	var cs, cd r3.Vector
	for i := range src {
		cs = cs.Add(src[i])
		cd = cd.Add(dst[i])
	}
	cs = cs.Mul(1 / n)
	cd = cd.Mul(1 / n)

	h := mat.NewDense(3, 3, nil)
	for i := range src {
		s := src[i].Sub(cs)
		d := dst[i].Sub(cd)
		sv := [3]float64{s.X, s.Y, s.Z}
		dv := [3]float64{d.X, d.Y, d.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+dv[r]*sv[c])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return spatialmath.NewZeroPose(), false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// reflection, flip the last column of U
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}

	q := matrixToQuat(&r)
	rot := spatialmath.NewPose(r3.Vector{}, q)
	tr := cd.Sub(rot.Transform(cs))
	return spatialmath.NewPose(tr, q), true
}
