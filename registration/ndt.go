// Package registration aligns point clouds: a voxel-gaussian NDT for
// scan-to-map matching, a coarse-to-fine driver over it, a point-to-point
// ICP, and a closed-form planar trajectory alignment.
package registration

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/gaoxiang12/slam-in-ad-en/pointcloud"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// Result is the outcome of an alignment.
type Result struct {
	Pose       spatialmath.Pose
	Score      float64 // normalized match quality in [0, 1]
	Iterations int
	Converged  bool
}

// ndtVoxel is one gaussian cell of the target model.
type ndtVoxel struct {
	mean r3.Vector
	info [3][3]float64 // inverse covariance
}

// NDT is a voxelized gaussian model of a target cloud.
type NDT struct {
	resolution float64
	voxels     map[pointcloud.VoxelCoords]*ndtVoxel
}

// minimum points for a voxel to carry a usable gaussian
const ndtMinVoxelPoints = 3

const (
	ndtMaxIterations = 30
	ndtDeltaEpsilon  = 1e-4
	ndtDamping       = 1e-6
)

// BuildNDT computes the voxel gaussians of the target at the given
// resolution. Returns nil for an empty target.
func BuildNDT(target pointcloud.PointCloud, resolution float64) *NDT {
	if target == nil || target.Size() == 0 {
		return nil
	}
	type accum struct {
		sum r3.Vector
		op  [3][3]float64 // sum of outer products
		n   int
	}
	cells := make(map[pointcloud.VoxelCoords]*accum)
	target.Iterate(func(p r3.Vector, d pointcloud.Data) bool {
		k := pointcloud.GetVoxelCoords(p, resolution)
		a, ok := cells[k]
		if !ok {
			a = &accum{}
			cells[k] = a
		}
		a.sum = a.sum.Add(p)
		c := [3]float64{p.X, p.Y, p.Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				a.op[i][j] += c[i] * c[j]
			}
		}
		a.n++
		return true
	})

	n := &NDT{resolution: resolution, voxels: make(map[pointcloud.VoxelCoords]*ndtVoxel, len(cells))}
	// covariance floor keeps degenerate cells (a wall seen edge-on) invertible
	floor := 0.01 * resolution * 0.01 * resolution
	for k, a := range cells {
		if a.n < ndtMinVoxelPoints {
			continue
		}
		inv := 1.0 / float64(a.n)
		mean := a.sum.Mul(inv)
		m := [3]float64{mean.X, mean.Y, mean.Z}
		var cov [3][3]float64
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				cov[i][j] = a.op[i][j]*inv - m[i]*m[j]
			}
			cov[i][i] += floor
		}
		info, ok := invert3(cov)
		if !ok {
			continue
		}
		n.voxels[k] = &ndtVoxel{mean: mean, info: info}
	}
	if len(n.voxels) == 0 {
		return nil
	}
	return n
}

// Align registers the source against the model starting from init,
// Gauss-Newton over SE3 with point-to-distribution residuals.
func (n *NDT) Align(source pointcloud.PointCloud, init spatialmath.Pose) Result {
	res := Result{Pose: init}
	if n == nil || source == nil || source.Size() == 0 {
		return res
	}
	pts := pointcloud.Points(source)
	pose := init

	for iter := 0; iter < ndtMaxIterations; iter++ {
		var H mat.SymDense
		H.ReuseAsSym(6)
		b := mat.NewVecDense(6, nil)
		R := rotationMatrix(pose.Rotation())
		matched := 0

		for _, p := range pts {
			world := pose.Transform(p)
			vox, ok := n.voxels[pointcloud.GetVoxelCoords(world, n.resolution)]
			if !ok {
				continue
			}
			matched++
			e := world.Sub(vox.mean)

			// J = [R  -R·skew(p)], right-multiplicative perturbation
			var J [3][6]float64
			sk := skew(p)
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					J[i][j] = R[i][j]
					var rs float64
					for k := 0; k < 3; k++ {
						rs += R[i][k] * sk[k][j]
					}
					J[i][3+j] = -rs
				}
			}

			ev := [3]float64{e.X, e.Y, e.Z}
			var we [3]float64
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					we[i] += vox.info[i][j] * ev[j]
				}
			}
			for a := 0; a < 6; a++ {
				var jwe float64
				for i := 0; i < 3; i++ {
					jwe += J[i][a] * we[i]
				}
				b.SetVec(a, b.AtVec(a)+jwe)
				for c := a; c < 6; c++ {
					var jwj float64
					for i := 0; i < 3; i++ {
						var wj float64
						for j := 0; j < 3; j++ {
							wj += vox.info[i][j] * J[j][c]
						}
						jwj += J[i][a] * wj
					}
					H.SetSym(a, c, H.At(a, c)+jwj)
				}
			}
		}
		res.Iterations = iter + 1
		if matched == 0 {
			res.Pose = pose
			return res
		}
		for a := 0; a < 6; a++ {
			H.SetSym(a, a, H.At(a, a)+ndtDamping)
		}

		var chol mat.Cholesky
		if !chol.Factorize(&H) {
			break
		}
		delta := mat.NewVecDense(6, nil)
		if err := chol.SolveVecTo(delta, b); err != nil {
			break
		}
		var d [6]float64
		for a := 0; a < 6; a++ {
			d[a] = -delta.AtVec(a)
		}
		pose = spatialmath.Compose(pose, spatialmath.PoseExp(d))
		norm := 0.0
		for _, v := range d {
			norm += v * v
		}
		if math.Sqrt(norm) < ndtDeltaEpsilon {
			res.Converged = true
			break
		}
	}

	res.Pose = pose
	res.Score = n.score(pts, pose)
	return res
}

// score is the mean gaussian likelihood of the source under the model,
// zero-filled for unmatched points, so it is comparable across candidates.
func (n *NDT) score(pts []r3.Vector, pose spatialmath.Pose) float64 {
	if len(pts) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range pts {
		world := pose.Transform(p)
		vox, ok := n.voxels[pointcloud.GetVoxelCoords(world, n.resolution)]
		if !ok {
			continue
		}
		e := world.Sub(vox.mean)
		ev := [3]float64{e.X, e.Y, e.Z}
		var d2 float64
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				d2 += ev[i] * vox.info[i][j] * ev[j]
			}
		}
		total += math.Exp(-0.5 * d2)
	}
	return total / float64(len(pts))
}

func skew(v r3.Vector) [3][3]float64 {
	return [3][3]float64{
		{0, -v.Z, v.Y},
		{v.Z, 0, -v.X},
		{-v.Y, v.X, 0},
	}
}

func invert3(m [3][3]float64) ([3][3]float64, bool) {
	a, b, c := m[0][0], m[0][1], m[0][2]
	d, e, f := m[1][0], m[1][1], m[1][2]
	g, h, i := m[2][0], m[2][1], m[2][2]
	det := a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
	if math.Abs(det) < 1e-18 {
		return [3][3]float64{}, false
	}
	inv := 1 / det
	return [3][3]float64{
		{(e*i - f*h) * inv, (c*h - b*i) * inv, (b*f - c*e) * inv},
		{(f*g - d*i) * inv, (a*i - c*g) * inv, (c*d - a*f) * inv},
		{(d*h - e*g) * inv, (b*g - a*h) * inv, (a*e - b*d) * inv},
	}, true
}
