package jobs

import (
	"errors"
	"time"

	"docpress/internal/render"
)

// The decision core is pure: no clocks, queues or HTTP. The worker
// feeds it an error and the job's attempt counters and acts on what
// comes back.

const CodeStorageError = "storage_error"

// Classify maps a step failure to an error code and whether it is
// worth retrying. Render errors carry their own classification; 4xx
// means the request itself is bad and retrying cannot help.
func Classify(err error) (code string, retryable bool) {
	var re *render.Error
	if errors.As(err, &re) {
		return re.Code, re.Retryable
	}
	return CodeStorageError, true
}

type Disposition int

const (
	DispositionRetry Disposition = iota
	DispositionFail
)

// Decide picks retry or terminal failure for attempt number `attempts`
// (already incremented for the attempt that just failed).
func Decide(attempts, maxAttempts int, retryable bool) Disposition {
	if !retryable || attempts >= maxAttempts {
		return DispositionFail
	}
	return DispositionRetry
}

// BackoffDelay doubles per attempt starting at base, capped.
func BackoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
