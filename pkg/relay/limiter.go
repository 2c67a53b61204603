package relay

import "golang.org/x/time/rate"

// recoveryLimiter throttles recovery servicing per consumer. A consumer
// stuck in a gap loop would otherwise turn the replay buffer into a
// denial-of-service path for everyone else on the broker.
//
// Only a non-blocking check is exposed: recovery runs on the fan-out
// path, and blocking there would stall live delivery for the very
// consumer recovery is trying to heal. A throttled request is simply
// dropped and the broker does not retry it: for a gap found on delivery
// the consumer's tracked sequence has already moved past the range, so
// the same range is not requested again and the consumer stays in the
// recovering state.
type recoveryLimiter struct {
	bucket *rate.Limiter
}

func newRecoveryLimiter(requestsPerSecond int) *recoveryLimiter {
	return &recoveryLimiter{
		bucket: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// allow reports whether a recovery request may be serviced right now.
func (rl *recoveryLimiter) allow() bool {
	return rl.bucket.Allow()
}
