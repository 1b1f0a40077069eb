// Package posegraph builds and solves the keyframe pose graph in two
// stages: odometry + absolute fixes first, loop closures second.
package posegraph

import (
	"github.com/golang/geo/r3"

	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// FactorKind tags the closed set of factor variants in the graph.
type FactorKind int

const (
	// FactorAbsolutePosition is a unary 3-DoF constraint tying a vertex
	// translation to an observed absolute position.
	FactorAbsolutePosition FactorKind = iota
	// FactorRelativeMotion is a binary SE3 constraint between
	// consecutive keyframes, sourced from odometry.
	FactorRelativeMotion
	// FactorLoopClosure has the same form as FactorRelativeMotion but is
	// sourced from an accepted loop candidate.
	FactorLoopClosure
	// FactorAbsolutePose is a unary 6-DoF constraint tying a vertex to a
	// fully observed absolute pose, used when the absolute sensor also
	// provides heading.
	FactorAbsolutePose
)

func (k FactorKind) String() string {
	switch k {
	case FactorAbsolutePosition:
		return "abs"
	case FactorRelativeMotion:
		return "odom"
	case FactorLoopClosure:
		return "loop"
	case FactorAbsolutePose:
		return "abspose"
	}
	return "unknown"
}

// Factor is one measurement constraint. I and J index vertices; J is
// unused for unary factors. The weights are inverse standard deviations
// applied to the translation and rotation residual components.
type Factor struct {
	Kind FactorKind
	I, J int64

	Obs    spatialmath.Pose // observed relative pose (binary factors)
	ObsPos r3.Vector        // observed position (absolute factors)

	WTrans float64
	WRot   float64

	Robust     bool
	HuberDelta float64
}

// dim returns the residual dimension of the factor.
func (f *Factor) dim() int {
	if f.Kind == FactorAbsolutePosition {
		return 3
	}
	return 6
}

// binary reports whether the factor constrains two vertices.
func (f *Factor) binary() bool {
	return f.Kind == FactorRelativeMotion || f.Kind == FactorLoopClosure
}

// residual evaluates the factor at the given vertex poses. extrinsic is
// the lever arm from vehicle body to the absolute-position antenna.
func (f *Factor) residual(pi, pj spatialmath.Pose, extrinsic r3.Vector) []float64 {
	switch f.Kind {
	case FactorAbsolutePosition:
		pred := pi.Transform(extrinsic)
		e := pred.Sub(f.ObsPos)
		return []float64{e.X * f.WTrans, e.Y * f.WTrans, e.Z * f.WTrans}
	case FactorAbsolutePose:
		pred := spatialmath.Compose(pi, spatialmath.NewPoseFromPoint(extrinsic))
		d := spatialmath.PoseDelta(spatialmath.Compose(spatialmath.PoseInverse(f.Obs), pred))
		return []float64{
			d[0] * f.WTrans, d[1] * f.WTrans, d[2] * f.WTrans,
			d[3] * f.WRot, d[4] * f.WRot, d[5] * f.WRot,
		}
	default:
		err := spatialmath.Compose(spatialmath.PoseInverse(f.Obs), spatialmath.PoseBetween(pi, pj))
		d := spatialmath.PoseDelta(err)
		return []float64{
			d[0] * f.WTrans, d[1] * f.WTrans, d[2] * f.WTrans,
			d[3] * f.WRot, d[4] * f.WRot, d[5] * f.WRot,
		}
	}
}
