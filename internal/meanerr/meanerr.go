// Package meanerr aggregates the RTT estimator's "Mean error" log lines.
//
// The estimator logs lines of the form
//
//	Mean error of 48.2 with a weight of 12
//
// where the weight is the number of samples behind the error. The
// aggregate is the weight-weighted mean of the errors.
package meanerr

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/NodePath81/simstat/internal/analysis"
)

const (
	// Marker selects the lines that carry a measurement.
	Marker = "Mean error of"
	// DefaultMinWeight is the weight an entry must exceed to be kept.
	DefaultMinWeight = 1

	maxLineBytes = 1024 * 1024
)

var entryPattern = regexp.MustCompile(`Mean error of\s+(\S+)\s+with a weight of\s+(\S+)`)

// Entry is one measurement extracted from a log line.
type Entry struct {
	Line   int
	Value  float64
	Weight int64
}

// Options controls which entries are aggregated.
type Options struct {
	// MinWeight is the weight an entry must exceed to be kept.
	MinWeight int64
	// Logger receives one debug line per kept entry. Nil disables it.
	Logger *slog.Logger
}

// DefaultOptions drops entries with a weight of 1 or less.
func DefaultOptions() Options {
	return Options{MinWeight: DefaultMinWeight}
}

// Result is the weighted mean over the kept entries.
type Result struct {
	// Source is the log the entries were read from.
	Source string
	// Mean is sum(value*weight) / sum(weight).
	Mean float64
	// Weight is the sum of the kept weights.
	Weight int64
	// Entries is the number of measurement lines found.
	Entries int
	// Kept is the number of entries whose weight exceeded MinWeight.
	Kept int
}

// Entries returns the measurements found in r, in order. A line carrying
// the marker that does not match the pattern yields an
// *analysis.ParseError and ends the sequence. The sequence reads r as it is
// consumed, so it can be ranged over only once.
func Entries(r io.Reader, source string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if !strings.Contains(line, Marker) {
				continue
			}
			entry, err := parseLine(line, lineNo, source)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Entry{}, fmt.Errorf("read %s: %w", source, err))
		}
	}
}

// AggregateFile opens path and aggregates its entries.
func AggregateFile(path string, opts Options) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	res, err := Aggregate(Entries(f, path), opts)
	res.Source = path
	return res, err
}

// Aggregate computes the weighted mean of the entries whose weight exceeds
// opts.MinWeight. It returns an error wrapping analysis.ErrZeroWeight when
// no entry qualifies and one wrapping analysis.ErrOverflow when the total
// weight or the weighted sum leaves its numeric range.
func Aggregate(entries iter.Seq2[Entry, error], opts Options) (Result, error) {
	var acc analysis.WeightedMean
	var res Result
	for entry, err := range entries {
		if err != nil {
			return Result{}, err
		}
		res.Entries++
		if entry.Weight <= opts.MinWeight {
			continue
		}
		if err := acc.Add(entry.Value, float64(entry.Weight)); err != nil {
			return Result{}, fmt.Errorf("line %d: %w", entry.Line, err)
		}
		// Add rejected negative weights, so only the upper bound can be crossed.
		if entry.Weight > math.MaxInt64-res.Weight {
			return Result{}, fmt.Errorf("line %d: %w", entry.Line, analysis.Overflow("total weight"))
		}
		res.Kept++
		res.Weight += entry.Weight
		if opts.Logger != nil {
			opts.Logger.Debug("entry kept", "line", entry.Line, "error", entry.Value, "weight", entry.Weight)
		}
	}
	mean, err := acc.Mean()
	switch {
	case errors.Is(err, analysis.ErrZeroWeight):
		return Result{}, analysis.ZeroWeight("no qualifying entries")
	case err != nil:
		return Result{}, fmt.Errorf("weighted error sum: %w", err)
	}
	res.Mean = mean
	return res, nil
}

func parseLine(line string, lineNo int, source string) (Entry, error) {
	m := entryPattern.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, &analysis.ParseError{Source: source, Line: lineNo, Field: "pattern", Text: strings.TrimSpace(line),
			Err: fmt.Errorf("expected %q", "of <float> with a weight of <int>")}
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err == nil && (math.IsNaN(value) || math.IsInf(value, 0)) {
		err = fmt.Errorf("value %q is not finite", m[1])
	}
	if err != nil {
		return Entry{}, &analysis.ParseError{Source: source, Line: lineNo, Field: "error", Text: m[1], Err: err}
	}
	weight, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Entry{}, &analysis.ParseError{Source: source, Line: lineNo, Field: "weight", Text: m[2], Err: err}
	}
	return Entry{Line: lineNo, Value: value, Weight: weight}, nil
}
