// Package report turns attempt state and scored results into the values the
// exam screens and exports display.
package report

import "fmt"

// TimerBand classifies the remaining time for colouring the countdown.
type TimerBand string

const (
	BandNormal   TimerBand = "normal"
	BandWarning  TimerBand = "warning"
	BandCritical TimerBand = "critical"

	warningSeconds  = 600
	criticalSeconds = 300
)

// FormatClock renders seconds as h:mm:ss, or m:ss under an hour.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Band returns the timer band for the remaining seconds.
func Band(seconds int) TimerBand {
	switch {
	case seconds <= criticalSeconds:
		return BandCritical
	case seconds <= warningSeconds:
		return BandWarning
	default:
		return BandNormal
	}
}
