package joint

import "math"

// Vector is an ordered set of joint angles in radians, one per joint index.
type Vector []float64

// Clone returns a copy of v.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Lerp returns a + alpha*(b-a) element-wise. Both vectors must have the
// same length; alpha is clamped to [0, 1].
func Lerp(a, b Vector, alpha float64) Vector {
	alpha = math.Max(0, math.Min(1, alpha))
	out := make(Vector, len(a))
	for i := range a {
		out[i] = a[i] + alpha*(b[i]-a[i])
	}
	return out
}

// ApproxEqual reports whether a and b have equal length and every element
// differs by at most tol.
func ApproxEqual(a, b Vector, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// Finite reports whether every element is a finite number.
func (v Vector) Finite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
