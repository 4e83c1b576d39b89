package delivery

import "time"

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Delivered means the target answered 2xx.
	Delivered Decision = iota

	// Retry means the attempt failed and another one is scheduled.
	Retry

	// Fail means the attempt failed and the retry limit is used up.
	Fail
)

func (d Decision) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case Retry:
		return "retry"
	default:
		return "failed"
	}
}

// Result holds the outcome of a single HTTP attempt. StatusCode is 0 when
// no response arrived.
type Result struct {
	StatusCode int
	Error      string
	Response   string
	LatencyMs  int
}

// OK reports whether the response was 2xx.
func (r Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// maxBackoffShift keeps Minute<<shift inside int64.
const maxBackoffShift = 20

// Backoff returns the wait after the given failed attempt:
// 2^(attempt-1) minutes, so 1m, 2m, 4m, 8m and so on.
func Backoff(attempt int) time.Duration {
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return time.Minute << shift
}

// Decide classifies an attempt. Any non-2xx outcome, network errors
// included, is retried while attempts < retryLimit.
func Decide(res Result, attempts, retryLimit int) Decision {
	if res.OK() {
		return Delivered
	}
	if attempts < retryLimit {
		return Retry
	}
	return Fail
}

// NextRetry returns when the next attempt is due after a failed attempt,
// and false once the retry limit is reached.
func NextRetry(attempts, retryLimit int, now time.Time) (time.Time, bool) {
	if attempts >= retryLimit {
		return time.Time{}, false
	}
	return now.Add(Backoff(attempts)), true
}
