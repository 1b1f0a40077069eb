package posegraph

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// SolveConfig holds the optimizer parameters.
type SolveConfig struct {
	MaxIterations int
	InitialLambda float64
	DeltaEpsilon  float64
	Extrinsic     r3.Vector // body-to-antenna lever arm
}

// DefaultSolveConfig returns the parameters used by both stages.
func DefaultSolveConfig() SolveConfig {
	return SolveConfig{
		MaxIterations: 50,
		InitialLambda: 1e-4,
		DeltaEpsilon:  1e-8,
	}
}

// Problem is a pose graph ready to solve. Vertex i is the pose of
// keyframe i; the slice is mutated in place by Solve.
type Problem struct {
	Poses   []spatialmath.Pose
	Factors []*Factor

	// FixFirst anchors vertex 0 when nothing else pins the gauge
	// (a run with no valid absolute fixes).
	FixFirst bool
}

const jacobianEps = 1e-6

// Solve runs Levenberg-Marquardt on the graph.
func (p *Problem) Solve(cfg SolveConfig, logger golog.Logger) error {
	n := len(p.Poses)
	if n == 0 {
		return errors.New("pose graph has no vertices")
	}
	dim := 6 * n
	lambda := cfg.InitialLambda
	chi2 := p.chi2(cfg)

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		H := mat.NewSymDense(dim, nil)
		b := mat.NewVecDense(dim, nil)
		p.assemble(cfg, H, b)

		if p.FixFirst {
			anchorFirstVertex(H, b)
		}

		accepted := false
		for attempt := 0; attempt < 8; attempt++ {
			damped := mat.NewSymDense(dim, nil)
			damped.CopySym(H)
			for i := 0; i < dim; i++ {
				damped.SetSym(i, i, damped.At(i, i)*(1+lambda)+lambda)
			}
			var chol mat.Cholesky
			if !chol.Factorize(damped) {
				lambda *= 10
				continue
			}
			delta := mat.NewVecDense(dim, nil)
			if err := chol.SolveVecTo(delta, b); err != nil {
				lambda *= 10
				continue
			}

			candidate := p.applyDelta(delta)
			newChi2 := chi2Of(candidate, p.Factors, cfg)
			if newChi2 <= chi2 {
				copy(p.Poses, candidate)
				stepNorm := mat.Norm(delta, 2)
				improved := chi2 - newChi2
				chi2 = newChi2
				lambda = math.Max(lambda/2, 1e-12)
				accepted = true
				if stepNorm < cfg.DeltaEpsilon || improved < cfg.DeltaEpsilon {
					logger.Debugw("pose graph converged", "iterations", iter+1, "chi2", chi2)
					return nil
				}
				break
			}
			lambda *= 10
		}
		if !accepted {
			logger.Debugw("pose graph stalled", "iterations", iter+1, "chi2", chi2)
			return nil
		}
	}
	logger.Debugw("pose graph finished", "iterations", cfg.MaxIterations, "chi2", chi2)
	return nil
}

// applyDelta returns the vertex poses perturbed by -delta.
func (p *Problem) applyDelta(delta *mat.VecDense) []spatialmath.Pose {
	out := make([]spatialmath.Pose, len(p.Poses))
	for i := range p.Poses {
		var d [6]float64
		for k := 0; k < 6; k++ {
			d[k] = -delta.AtVec(6*i + k)
		}
		out[i] = spatialmath.Compose(p.Poses[i], spatialmath.PoseExp(d))
	}
	return out
}

func (p *Problem) chi2(cfg SolveConfig) float64 {
	return chi2Of(p.Poses, p.Factors, cfg)
}

func chi2Of(poses []spatialmath.Pose, factors []*Factor, cfg SolveConfig) float64 {
	total := 0.0
	for _, f := range factors {
		r := factorResidual(poses, f, cfg.Extrinsic)
		c := sqNorm(r)
		if f.Robust {
			c = huber(c, f.HuberDelta)
		}
		total += c
	}
	return total
}

func factorResidual(poses []spatialmath.Pose, f *Factor, extrinsic r3.Vector) []float64 {
	pi := poses[f.I]
	pj := spatialmath.NewZeroPose()
	if f.binary() {
		pj = poses[f.J]
	}
	return f.residual(pi, pj, extrinsic)
}

// FactorChi2 is the squared weighted residual norm of the factor at the
// given poses, before any robustification.
func FactorChi2(poses []spatialmath.Pose, f *Factor, extrinsic r3.Vector) float64 {
	return sqNorm(factorResidual(poses, f, extrinsic))
}

// assemble accumulates the normal equations H δ = b at the current poses.
func (p *Problem) assemble(cfg SolveConfig, H *mat.SymDense, b *mat.VecDense) {
	for _, f := range p.Factors {
		r := factorResidual(p.Poses, f, cfg.Extrinsic)
		w := 1.0
		if f.Robust {
			w = huberWeight(sqNorm(r), f.HuberDelta)
		}

		vertices := []int64{f.I}
		if f.binary() {
			vertices = append(vertices, f.J)
		}
		jacs := make([][][]float64, len(vertices))
		for vi, v := range vertices {
			jacs[vi] = p.numericJacobian(f, v, cfg.Extrinsic)
		}

		for vi, v := range vertices {
			jv := jacs[vi]
			// b block
			for a := 0; a < 6; a++ {
				var acc float64
				for k := range r {
					acc += jv[k][a] * r[k] * w
				}
				b.SetVec(int(6*v)+a, b.AtVec(int(6*v)+a)+acc)
			}
			// H blocks
			for wi := vi; wi < len(vertices); wi++ {
				u := vertices[wi]
				ju := jacs[wi]
				for a := 0; a < 6; a++ {
					for c := 0; c < 6; c++ {
						ra, ca := int(6*v)+a, int(6*u)+c
						if ca < ra {
							continue
						}
						var acc float64
						for k := range r {
							acc += jv[k][a] * ju[k][c] * w
						}
						H.SetSym(ra, ca, H.At(ra, ca)+acc)
					}
				}
			}
		}
	}
}

// numericJacobian differentiates the factor residual with respect to a
// right-multiplicative perturbation of vertex v, by central differences.
func (p *Problem) numericJacobian(f *Factor, v int64, extrinsic r3.Vector) [][]float64 {
	d := f.dim()
	jac := make([][]float64, d)
	for k := range jac {
		jac[k] = make([]float64, 6)
	}
	base := p.Poses[v]
	for a := 0; a < 6; a++ {
		var plus, minus [6]float64
		plus[a] = jacobianEps
		minus[a] = -jacobianEps

		p.Poses[v] = spatialmath.Compose(base, spatialmath.PoseExp(plus))
		rp := factorResidual(p.Poses, f, extrinsic)
		p.Poses[v] = spatialmath.Compose(base, spatialmath.PoseExp(minus))
		rm := factorResidual(p.Poses, f, extrinsic)
		p.Poses[v] = base

		for k := 0; k < d; k++ {
			jac[k][a] = (rp[k] - rm[k]) / (2 * jacobianEps)
		}
	}
	return jac
}

func anchorFirstVertex(H *mat.SymDense, b *mat.VecDense) {
	dim := b.Len()
	for a := 0; a < 6; a++ {
		for c := a; c < dim; c++ {
			H.SetSym(a, c, 0)
		}
		H.SetSym(a, a, 1)
		b.SetVec(a, 0)
	}
}

func sqNorm(r []float64) float64 {
	total := 0.0
	for _, v := range r {
		total += v * v
	}
	return total
}

// huber maps a squared residual norm through the Huber loss.
func huber(chi2, delta float64) float64 {
	if delta <= 0 {
		return chi2
	}
	e := math.Sqrt(chi2)
	if e <= delta {
		return chi2
	}
	return 2*delta*e - delta*delta
}

// huberWeight is the IRLS weight of the Huber kernel at the given squared
// residual norm.
func huberWeight(chi2, delta float64) float64 {
	if delta <= 0 {
		return 1
	}
	e := math.Sqrt(chi2)
	if e <= delta {
		return 1
	}
	return delta / e
}
