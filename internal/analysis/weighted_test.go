package analysis

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightedMeanLaw(t *testing.T) {
	values := []float64{1.5, 4, 10, 0.25}
	weights := []float64{2, 3, 5, 10}

	var acc WeightedMean
	var num, den float64
	for i := range values {
		require.NoError(t, acc.Add(values[i], weights[i]))
		num += values[i] * weights[i]
		den += weights[i]
	}

	mean, err := acc.Mean()
	require.NoError(t, err)
	assert.InDelta(t, num/den, mean, 1e-12)
	assert.Equal(t, den, acc.Weight())
	assert.Equal(t, len(values), acc.Count())
}

func TestWeightedMeanConstantSignal(t *testing.T) {
	for _, weights := range [][]float64{{1}, {1, 1000}, {7, 3, 0.5}, {2, 0, 9}} {
		var acc WeightedMean
		for _, w := range weights {
			require.NoError(t, acc.Add(42.5, w))
		}
		mean, err := acc.Mean()
		require.NoError(t, err)
		assert.InDelta(t, 42.5, mean, 1e-9, "weights %v", weights)
	}
}

func TestWeightedMeanZeroWeight(t *testing.T) {
	var acc WeightedMean
	_, err := acc.Mean()
	assert.ErrorIs(t, err, ErrZeroWeight)

	require.NoError(t, acc.Add(3, 0))
	_, err = acc.Mean()
	assert.ErrorIs(t, err, ErrZeroWeight)
	assert.Equal(t, 1, acc.Count())
}

func TestWeightedMeanRejectsNegativeWeight(t *testing.T) {
	var acc WeightedMean
	assert.ErrorIs(t, acc.Add(1, -1), ErrNegativeWeight)
	assert.Zero(t, acc.Count())
}

func TestRatio(t *testing.T) {
	got, err := Ratio(280, 300)
	require.NoError(t, err)
	assert.InDelta(t, 0.9333333, got, 1e-6)

	_, err = Ratio(1, 0)
	assert.ErrorIs(t, err, ErrZeroWeight)
}

func TestWeightedMeanOverflow(t *testing.T) {
	var acc WeightedMean
	require.NoError(t, acc.Add(1e308, 1))
	require.NoError(t, acc.Add(1e308, 1))
	_, err := acc.Mean()
	assert.ErrorIs(t, err, ErrOverflow)

	var huge WeightedMean
	require.NoError(t, huge.Add(1, math.MaxFloat64))
	require.NoError(t, huge.Add(1, math.MaxFloat64))
	_, err = huge.Mean()
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestRatioOverflow(t *testing.T) {
	_, err := Ratio(1e308, 1e-10)
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = Ratio(math.Inf(1), 2)
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = Ratio(math.NaN(), 2)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCheckFinite(t *testing.T) {
	assert.NoError(t, CheckFinite("rx packets", 1e300))
	err := CheckFinite("rx packets", math.Inf(1))
	assert.ErrorIs(t, err, ErrOverflow)
	assert.Equal(t, "rx packets: value out of range", err.Error())
}

func TestParseErrorMessage(t *testing.T) {
	_, convErr := strconv.ParseFloat("abc", 64)
	err := error(&ParseError{Source: "s3.cwnd", Line: 4, Text: "abc", Err: convErr})
	assert.Contains(t, err.Error(), "s3.cwnd at line 4")
	assert.True(t, errors.Is(err, strconv.ErrSyntax))

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 4, perr.Line)

	rec := &ParseError{Source: "s4.flowmon", Record: "12", Field: "txPackets"}
	assert.Equal(t, "parse error in s4.flowmon in record 12 (txPackets)", rec.Error())
}

func TestZeroWeightWraps(t *testing.T) {
	err := ZeroWeight("no qualifying flows")
	assert.ErrorIs(t, err, ErrZeroWeight)
	assert.Equal(t, "no qualifying flows: total weight is zero", err.Error())
}
