package scheduler

import (
	"math/rand"
	"time"
)

// backoff computes the retry delay for the given attempt number (1-based):
// exponential doubling from base, capped at max, with equal jitter so a herd
// of jobs failing together does not come back together.
func backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	if max > 0 && d > max {
		d = max
	}

	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
