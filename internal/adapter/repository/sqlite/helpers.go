package sqlite

import (
	"math"
	"time"
)

// cutoffDate returns the calendar date `days` ago in YYYY-MM-DD form.
func cutoffDate(days int) string {
	return time.Now().AddDate(0, 0, -days).Format("2006-01-02")
}

func roundTwo(v float64) float64 {
	return math.Round(v*100) / 100
}
