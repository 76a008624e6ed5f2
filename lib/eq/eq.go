/*Package eq is a small package for telling whether two numeric values or
arrays are equal to one another, exactly or within a tolerance.*/
package eq

import "math"

// Float64s returns true if two []float64 arrays are identical and false
// otherwise.
func Float64s(x, y []float64) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Float64Eps returns true if x and y are within eps of one another.
func Float64Eps(x, y, eps float64) bool {
	return math.Abs(x-y) <= eps
}

// Float64RelEps returns true if x and y differ by no more than relEps times
// the magnitude of y. Intended for comparing energies/charges against a
// reference value, where an absolute tolerance would be meaningless.
func Float64RelEps(x, y, relEps float64) bool {
	if y == 0 {
		return math.Abs(x) <= relEps
	}
	return math.Abs(x-y) <= relEps*math.Abs(y)
}

// Float64sEps returns true if the two []float64 arrays are within eps of
// one another, elementwise, and false otherwise.
func Float64sEps(x, y []float64, eps float64) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if !Float64Eps(x[i], y[i], eps) {
			return false
		}
	}
	return true
}
