package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// sizeUnits is ordered so that longer suffixes are tried first.
var sizeUnits = []struct {
	suffix string
	bytes  float64
}{
	{"kb", 1e3},
	{"mb", 1e6},
	{"b", 1},
}

// ParseSize parses a byte count such as "536", "536b", "1.5kb" or "1mb"
// (case insensitive, decimal units). An empty string is 0. The result must
// be a whole number of bytes that fits in a uint32.
func ParseSize(s string) (uint32, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		return 0, nil
	}

	num, scale := raw, 1.0
	for _, u := range sizeUnits {
		if strings.HasSuffix(raw, u.suffix) {
			num, scale = strings.TrimSpace(strings.TrimSuffix(raw, u.suffix)), u.bytes
			break
		}
	}

	value, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid size value: %q", s)
	}
	if value < 0 {
		return 0, fmt.Errorf("size cannot be negative: %q", s)
	}
	scaled := value * scale
	bytes := math.Round(scaled)
	if bytes > math.MaxUint32 {
		return 0, fmt.Errorf("size %q exceeds %d bytes", s, uint32(math.MaxUint32))
	}
	// 1.1kb is 1100.0000000000002 in float64.
	if math.Abs(scaled-bytes) > 1e-6 {
		return 0, fmt.Errorf("size %q is not a whole number of bytes", s)
	}
	return uint32(bytes), nil
}
