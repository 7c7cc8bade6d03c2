// Package cwnd averages congestion-window traces.
//
// A trace holds one decimal sample per line, the cwnd in bytes written each
// time the sender's window changes. Every line is a raw observation, so the
// mean is taken with weight 1 per sample.
package cwnd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/NodePath81/simstat/internal/analysis"
)

const (
	// DefaultSegmentSize is 512 bytes of payload plus headers.
	DefaultSegmentSize = 536

	maxLineBytes = 1024 * 1024
)

var errNotFinite = errors.New("value is not finite")

// Options tunes how a trace is summarized.
type Options struct {
	// SegmentSize converts the byte mean into segments. Zero disables it.
	SegmentSize int
}

// Result is the summary of one trace.
type Result struct {
	// Source is the file the samples were read from.
	Source string
	// Count is the number of samples, which is also the weight.
	Count int
	// MeanBytes is the arithmetic mean cwnd in bytes.
	MeanBytes float64
	// SegmentSize is the divisor used for MeanSegments (0 when disabled).
	SegmentSize int
	// MeanSegments is MeanBytes / SegmentSize.
	MeanSegments float64
}

// AverageFile opens path and averages its samples.
func AverageFile(path string, opts Options) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return Average(f, path, opts)
}

// Average reads one sample per line from r. Blank lines are skipped; any
// other line that is not a finite decimal number yields an
// *analysis.ParseError. An input without samples yields
// analysis.ErrZeroWeight, and samples whose sum exceeds the float64 range
// yield analysis.ErrOverflow.
func Average(r io.Reader, source string, opts Options) (Result, error) {
	if opts.SegmentSize < 0 {
		return Result{}, fmt.Errorf("segment size must be >= 0, got %d", opts.SegmentSize)
	}
	var acc analysis.WeightedMean
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		value, err := parseSample(text)
		if err != nil {
			return Result{}, &analysis.ParseError{Source: source, Line: lineNo, Text: text, Err: err}
		}
		if err := acc.Add(value, 1); err != nil {
			return Result{}, err
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("read %s: %w", source, err)
	}

	mean, err := acc.Mean()
	switch {
	case errors.Is(err, analysis.ErrZeroWeight):
		return Result{}, analysis.ZeroWeight("no samples")
	case err != nil:
		return Result{}, fmt.Errorf("sum of samples in %s: %w", source, err)
	}
	res := Result{
		Source:      source,
		Count:       acc.Count(),
		MeanBytes:   mean,
		SegmentSize: opts.SegmentSize,
	}
	if opts.SegmentSize > 0 {
		res.MeanSegments = mean / float64(opts.SegmentSize)
	}
	return res, nil
}

func parseSample(text string) (float64, error) {
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, errNotFinite
	}
	return value, nil
}
