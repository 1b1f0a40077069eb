// Package eskf implements an error-state Kalman filter over position,
// velocity, attitude, and the two inertial biases. The nominal state
// carries the full pose; the filter linearizes and corrects a 15-dim
// error state around it.
package eskf

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/gaoxiang12/slam-in-ad-en/sensor"
	"github.com/gaoxiang12/slam-in-ad-en/spatialmath"
)

// Error-state layout: indices of each 3-block in the 15-vector.
const (
	idxP     = 0
	idxV     = 3
	idxTheta = 6
	idxBg    = 9
	idxBa    = 12
	stateDim = 15
)

// inertial gaps longer than this are not propagated, only time-advanced
const maxPredictDt = 0.5

// Options holds the process noise densities and gravity.
type Options struct {
	GyroVar      float64
	AccelVar     float64
	BiasGyroVar  float64
	BiasAccelVar float64
	Gravity      r3.Vector
}

// DefaultOptions returns the noise model used by the localizer.
func DefaultOptions() Options {
	return Options{
		GyroVar:      1e-5,
		AccelVar:     1e-2,
		BiasGyroVar:  1e-6,
		BiasAccelVar: 1e-4,
		Gravity:      r3.Vector{Z: -9.81},
	}
}

// Filter is the error-state Kalman filter. Not safe for concurrent use;
// the localizer drives it from a single goroutine.
type Filter struct {
	opts Options

	time float64
	p    r3.Vector
	v    r3.Vector
	rot  quat.Number
	bg   r3.Vector
	ba   r3.Vector

	cov *mat.Dense
}

// New returns a filter at the origin with zero velocity and a broad
// default covariance.
func New(opts Options) *Filter {
	f := &Filter{
		opts: opts,
		rot:  quat.Number{Real: 1},
		cov:  mat.NewDense(stateDim, stateDim, nil),
	}
	f.SetCovariance(1, 1, 1, 1e-2)
	return f
}

// SetState resets the nominal state to the given pose and velocity at the
// given time. Biases are kept.
func (f *Filter) SetState(time float64, pose spatialmath.Pose, vel r3.Vector) {
	f.time = time
	f.p = pose.Point()
	f.rot = pose.Rotation()
	f.v = vel
}

// SetCovariance resets the covariance to a diagonal built from the given
// standard deviations (position, velocity, attitude, biases).
func (f *Filter) SetCovariance(posStd, velStd, rotStd, biasStd float64) {
	f.cov.Zero()
	setDiagBlock(f.cov, idxP, posStd*posStd)
	setDiagBlock(f.cov, idxV, velStd*velStd)
	setDiagBlock(f.cov, idxTheta, rotStd*rotStd)
	setDiagBlock(f.cov, idxBg, biasStd*biasStd)
	setDiagBlock(f.cov, idxBa, biasStd*biasStd)
}

// Nominal returns the current pose estimate.
func (f *Filter) Nominal() spatialmath.Pose {
	return spatialmath.NewPose(f.p, f.rot)
}

// Velocity returns the current world-frame velocity estimate.
func (f *Filter) Velocity() r3.Vector { return f.v }

// Time returns the timestamp of the last processed sample.
func (f *Filter) Time() float64 { return f.time }

// Predict propagates the nominal state and the error covariance through
// one inertial sample. Samples must arrive in timestamp order; stale ones
// are ignored.
func (f *Filter) Predict(imu sensor.IMU) {
	dt := imu.Time - f.time
	if dt <= 0 {
		return
	}
	f.time = imu.Time
	if dt > maxPredictDt {
		return
	}

	gyro := imu.Gyro.Sub(f.bg)
	acc := imu.Accel.Sub(f.ba)
	accWorld := spatialmath.Rotate(f.rot, acc).Add(f.opts.Gravity)

	f.p = f.p.Add(f.v.Mul(dt)).Add(accWorld.Mul(0.5 * dt * dt))
	f.v = f.v.Add(accWorld.Mul(dt))
	f.rot = spatialmath.Normalize(quat.Mul(f.rot, spatialmath.RotationExp(gyro.Mul(dt))))

	// error-state transition
	F := identity(stateDim)
	setBlock(F, idxP, idxV, scaled3(dt))
	R := rotationMatrix(f.rot)
	setBlock(F, idxV, idxTheta, scale3(mul3(R, skew(acc)), -dt))
	setBlock(F, idxV, idxBa, scale3(R, -dt))
	setBlock(F, idxTheta, idxTheta, rotationMatrix(spatialmath.RotationExp(gyro.Mul(-dt))))
	setBlock(F, idxTheta, idxBg, scaled3(-dt))

	var fp, fpft mat.Dense
	fp.Mul(F, f.cov)
	fpft.Mul(&fp, F.T())
	f.cov.CloneFrom(&fpft)

	addDiagBlock(f.cov, idxV, f.opts.AccelVar*dt*dt)
	addDiagBlock(f.cov, idxTheta, f.opts.GyroVar*dt*dt)
	addDiagBlock(f.cov, idxBg, f.opts.BiasGyroVar*dt)
	addDiagBlock(f.cov, idxBa, f.opts.BiasAccelVar*dt)
}

// observed error-state rows: position then attitude
var obsIdx = [6]int{idxP, idxP + 1, idxP + 2, idxTheta, idxTheta + 1, idxTheta + 2}

// ObservePose corrects the filter with a full-pose observation, such as a
// scan registration result, using the given measurement noises.
func (f *Filter) ObservePose(pose spatialmath.Pose, trNoise, rotNoise float64) error {
	// innovation in the error-state parameterization
	dp := pose.Point().Sub(f.p)
	dTheta := spatialmath.RotationLog(quat.Mul(quat.Conj(f.rot), pose.Rotation()))
	z := [6]float64{dp.X, dp.Y, dp.Z, dTheta.X, dTheta.Y, dTheta.Z}

	// S = H P Ht + V picks the observed rows and columns out of P
	S := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			S.Set(i, j, f.cov.At(obsIdx[i], obsIdx[j]))
		}
	}
	for i := 0; i < 3; i++ {
		S.Set(i, i, S.At(i, i)+trNoise*trNoise)
		S.Set(i+3, i+3, S.At(i+3, i+3)+rotNoise*rotNoise)
	}
	var sInv mat.Dense
	if err := sInv.Inverse(S); err != nil {
		return errors.Wrap(err, "pose observation is degenerate")
	}

	pht := mat.NewDense(stateDim, 6, nil)
	for i := 0; i < stateDim; i++ {
		for j := 0; j < 6; j++ {
			pht.Set(i, j, f.cov.At(i, obsIdx[j]))
		}
	}
	var K mat.Dense
	K.Mul(pht, &sInv)

	var dx [stateDim]float64
	for i := 0; i < stateDim; i++ {
		for j := 0; j < 6; j++ {
			dx[i] += K.At(i, j) * z[j]
		}
	}

	// P = P - K (H P); H P is phtᵀ for symmetric P
	var kph mat.Dense
	kph.Mul(&K, pht.T())
	f.cov.Sub(f.cov, &kph)

	f.inject(dx)
	return nil
}

// inject folds the corrected error state into the nominal state.
func (f *Filter) inject(dx [stateDim]float64) {
	f.p = f.p.Add(r3.Vector{X: dx[idxP], Y: dx[idxP+1], Z: dx[idxP+2]})
	f.v = f.v.Add(r3.Vector{X: dx[idxV], Y: dx[idxV+1], Z: dx[idxV+2]})
	f.rot = spatialmath.Normalize(quat.Mul(f.rot,
		spatialmath.RotationExp(r3.Vector{X: dx[idxTheta], Y: dx[idxTheta+1], Z: dx[idxTheta+2]})))
	f.bg = f.bg.Add(r3.Vector{X: dx[idxBg], Y: dx[idxBg+1], Z: dx[idxBg+2]})
	f.ba = f.ba.Add(r3.Vector{X: dx[idxBa], Y: dx[idxBa+1], Z: dx[idxBa+2]})
}
