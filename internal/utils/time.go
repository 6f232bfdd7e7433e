package utils

import (
	"fmt"
	"time"
)

func FormatDuration(duration time.Duration) string {
	hours := int(duration.Hours())
	minutes := int(duration.Minutes()) % 60
	seconds := int(duration.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// MinutesBetween returns the elapsed minutes from start to end, never
// negative.
func MinutesBetween(start, end time.Time) float64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return d.Minutes()
}

// RunningAverage folds a new sample into an average over count-1 samples.
func RunningAverage(current float64, count int64, sample float64) float64 {
	if count <= 1 {
		return sample
	}
	return current + (sample-current)/float64(count)
}
