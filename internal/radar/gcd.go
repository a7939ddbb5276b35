package radar

import "time"

// gcdDuration returns the greatest common divisor of a and b, treated as
// integer nanosecond counts (§4.10 step 1: tick_period = gcd of all
// subscriber refresh periods).
func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}
