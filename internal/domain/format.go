package domain

import (
	"fmt"
	"math"
)

// FormatTime renders whole seconds as m:ss.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// FormatPlaybackTime renders fractional seconds as m:ss, truncating.
func FormatPlaybackTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	return FormatTime(int(math.Floor(seconds)))
}
