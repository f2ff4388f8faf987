package infra

import "time"

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// CalculateBackoff returns the exponential backoff delay for a retry count:
// base * 2^retry, capped at the maximum. Negative counts get the base delay.
func CalculateBackoff(retry int) time.Duration {
	return CalculateBackoffWith(retry, backoffBase, backoffMax)
}

// CalculateBackoffWith is CalculateBackoff with explicit base and cap, used
// where the dispatcher wants a tighter retry budget than connection logic.
func CalculateBackoffWith(retry int, base, max time.Duration) time.Duration {
	if retry < 0 {
		return base
	}
	// 2^30 seconds already dwarfs any sane cap.
	if retry > 30 {
		return max
	}
	d := base * time.Duration(1<<retry)
	if d > max {
		return max
	}
	return d
}
