package processor

import "time"

const maxBackoffMinutes = 15

// Backoff returns the retry delay after n consecutive failures:
// 1, 2, 4, 8, then 15 minutes for every later failure.
func Backoff(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	minutes := maxBackoffMinutes
	if n <= 4 {
		minutes = 1 << (n - 1)
	}
	return time.Duration(minutes) * time.Minute
}
