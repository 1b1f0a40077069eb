package eskf

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func setBlock(m *mat.Dense, r, c int, b [3][3]float64) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(r+i, c+j, b[i][j])
		}
	}
}

func setDiagBlock(m *mat.Dense, at int, v float64) {
	for i := 0; i < 3; i++ {
		m.Set(at+i, at+i, v)
	}
}

func addDiagBlock(m *mat.Dense, at int, v float64) {
	for i := 0; i < 3; i++ {
		m.Set(at+i, at+i, m.At(at+i, at+i)+v)
	}
}

// scaled3 is s times the 3x3 identity.
func scaled3(s float64) [3][3]float64 {
	return [3][3]float64{{s, 0, 0}, {0, s, 0}, {0, 0, s}}
}

func scale3(a [3][3]float64, s float64) [3][3]float64 {
	for i := range a {
		for j := range a[i] {
			a[i][j] *= s
		}
	}
	return a
}

func mul3(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out
}

func skew(v r3.Vector) [3][3]float64 {
	return [3][3]float64{
		{0, -v.Z, v.Y},
		{v.Z, 0, -v.X},
		{-v.Y, v.X, 0},
	}
}

// rotationMatrix expands a unit quaternion into a row-major 3x3 rotation.
func rotationMatrix(q quat.Number) [3][3]float64 {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}
