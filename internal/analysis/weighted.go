// Package analysis holds the aggregation shared by the simstat analyses.
//
// Every report simstat produces is a weighted arithmetic mean: the sum of
// value*weight divided by the sum of weights. Records stand for unequal
// populations (packets, flows), so an unweighted mean over per-record
// quantities would misrepresent the underlying rate or ratio.
package analysis

import "math"

// WeightedMean accumulates (value, weight) pairs.
// The zero value is ready to use.
type WeightedMean struct {
	sum    float64
	weight float64
	count  int
}

// Add records value with the given weight. Negative and non-finite weights
// are rejected; a zero weight is counted but does not move the mean.
func (w *WeightedMean) Add(value, weight float64) error {
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return ErrNegativeWeight
	}
	w.sum += value * weight
	w.weight += weight
	w.count++
	return nil
}

// Sum returns the running sum of value*weight.
func (w *WeightedMean) Sum() float64 {
	return w.sum
}

// Weight returns the running sum of weights.
func (w *WeightedMean) Weight() float64 {
	return w.weight
}

// Count returns the number of pairs added.
func (w *WeightedMean) Count() int {
	return w.count
}

// Mean returns sum/weight. It returns ErrZeroWeight when no weight was
// accumulated and ErrOverflow when a running sum is no longer finite.
func (w *WeightedMean) Mean() (float64, error) {
	if !isFinite(w.sum) || !isFinite(w.weight) {
		return 0, ErrOverflow
	}
	return Ratio(w.sum, w.weight)
}

// Ratio divides num by den. It returns ErrZeroWeight when den is zero and
// ErrOverflow when either operand or the quotient is not finite, so callers
// never see NaN or Inf.
func Ratio(num, den float64) (float64, error) {
	if den == 0 {
		return 0, ErrZeroWeight
	}
	if !isFinite(num) || !isFinite(den) {
		return 0, ErrOverflow
	}
	q := num / den
	if !isFinite(q) {
		return 0, ErrOverflow
	}
	return q, nil
}

// CheckFinite returns an error wrapping ErrOverflow when v, the running
// total named by quantity, is NaN or infinite.
func CheckFinite(quantity string, v float64) error {
	if !isFinite(v) {
		return Overflow(quantity)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
