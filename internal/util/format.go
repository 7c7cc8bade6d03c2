package util

import (
	"fmt"
	"strconv"
)

var (
	byteUnits = []string{"B", "KB", "MB"}
	rateUnits = []string{"pkt/s", "Kpkt/s", "Mpkt/s"}
)

// FormatBytes formats a cwnd-sized byte count with decimal units.
func FormatBytes(bytes float64) string {
	return formatWithUnits(bytes, byteUnits)
}

// FormatPacketRate formats packets per second.
func FormatPacketRate(pps float64) string {
	return formatWithUnits(pps, rateUnits)
}

// FormatSeconds formats a duration in seconds, switching to ms and us
// below one second.
func FormatSeconds(sec float64) string {
	switch {
	case sec < 0:
		return "0s"
	case sec < 1e-3:
		return fmt.Sprintf("%.2fus", sec*1e6)
	case sec < 1:
		return fmt.Sprintf("%.2fms", sec*1e3)
	case sec < 10:
		return fmt.Sprintf("%.2fs", sec)
	default:
		return fmt.Sprintf("%.1fs", sec)
	}
}

// FormatPercent formats a ratio in [0,1] as a percentage.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}

// formatWithUnits divides value by 1000 per unit step, stopping at the
// last unit, and prints fewer decimals as the integer part grows.
func formatWithUnits(value float64, units []string) string {
	if value < 0 {
		return "0"
	}
	idx := 0
	for ; value >= 1000 && idx < len(units)-1; idx++ {
		value /= 1000
	}
	prec := 2
	switch {
	case value >= 100:
		prec = 0
	case value >= 10:
		prec = 1
	}
	return strconv.FormatFloat(value, 'f', prec, 64) + " " + units[idx]
}
