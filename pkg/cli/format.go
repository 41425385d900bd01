package cli

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// FormatSeconds formats d as seconds with millisecond precision, e.g. "1.5s".
func FormatSeconds(d time.Duration) string {
	s := fmt.Sprintf("%.3f", d.Seconds())
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + "s"
}

// FormatAngle formats radians with the degree equivalent, e.g.
// "0.500 (28.6°)".
func FormatAngle(rad float64) string {
	return fmt.Sprintf("%.3f (%.1f°)", rad, rad*180/math.Pi)
}

// Bar renders v within [lo, hi] as a horizontal gauge of width cells.
func Bar(v, lo, hi float64, width int) string {
	if width <= 0 {
		return ""
	}
	frac := 0.0
	if hi > lo {
		frac = (v - lo) / (hi - lo)
	}
	frac = math.Max(0, math.Min(1, frac))
	pos := int(math.Round(frac * float64(width-1)))
	var b strings.Builder
	for i := range width {
		if i == pos {
			b.WriteRune('●')
		} else {
			b.WriteRune('─')
		}
	}
	return b.String()
}
