package analysis

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrZeroWeight indicates that the total weight used as a divisor is zero.
	ErrZeroWeight = errors.New("total weight is zero")
	// ErrNegativeWeight indicates a weight below zero was offered to an accumulator.
	ErrNegativeWeight = errors.New("weight must be >= 0")
	// ErrOverflow indicates an accumulated sum or quotient left the float64 range.
	ErrOverflow = errors.New("value out of range")
)

// ParseError reports a line or record that does not match the expected format.
type ParseError struct {
	// Source is the file path or stream name being read.
	Source string
	// Line is the 1-based line number, or 0 when the input is not line oriented.
	Line int
	// Record identifies the failing record (for example a flow id) when Line is 0.
	Record string
	// Field names the attribute or pattern that failed.
	Field string
	// Text is the offending input, truncated for display.
	Text string
	// Err is the underlying conversion error, if any.
	Err error
}

const maxParseErrorText = 80

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse error")
	if e.Source != "" {
		b.WriteString(" in ")
		b.WriteString(e.Source)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	} else if e.Record != "" {
		fmt.Fprintf(&b, " in record %s", e.Record)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (%s)", e.Field)
	}
	if e.Text != "" {
		text := e.Text
		if len(text) > maxParseErrorText {
			text = text[:maxParseErrorText] + "..."
		}
		fmt.Fprintf(&b, ": %q", text)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ZeroWeight wraps ErrZeroWeight with a condition description such as
// "no qualifying flows".
func ZeroWeight(condition string) error {
	return fmt.Errorf("%s: %w", condition, ErrZeroWeight)
}

// Overflow wraps ErrOverflow with the name of the quantity that left the
// representable range.
func Overflow(quantity string) error {
	return fmt.Errorf("%s: %w", quantity, ErrOverflow)
}
