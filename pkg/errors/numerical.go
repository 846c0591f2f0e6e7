package errors

import (
	"math"
)

// CheckMatrix reports the first Inf values found in a matrix as a
// NumericalInstabilityError. NaN is allowed when allowNaN is set, since
// missing values travel through the feature pipeline as NaN.
func CheckMatrix(operation string, matrix interface{ At(int, int) float64 }, rows, cols int, allowNaN bool) error {
	var unstableValues []float64

	for i := 0; i < rows && len(unstableValues) < 10; i++ {
		for j := 0; j < cols; j++ {
			v := matrix.At(i, j)
			if math.IsInf(v, 0) || (!allowNaN && math.IsNaN(v)) {
				unstableValues = append(unstableValues, v)
				if len(unstableValues) >= 10 {
					break
				}
			}
		}
	}

	if len(unstableValues) > 0 {
		return NewNumericalInstabilityError(operation, unstableValues, 0)
	}

	return nil
}

// SafeDivide performs division with protection against division by zero.
// Returns 0 if denominator is zero or close to zero.
func SafeDivide(numerator, denominator float64) float64 {
	if math.Abs(denominator) < 1e-10 {
		return 0
	}
	return numerator / denominator
}
