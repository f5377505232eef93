package queue

import "time"

// backoffDelay implements the resolved open question from design notes §9:
// delay = 2^attempts * 60 seconds, for attempts in [1,4]. A job whose
// retries counter is about to reach the engine's maxRetries has no further
// backoff — HandleFailure transitions it straight to StatusFailed instead
// of calling this.
func backoffDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * 60 * time.Second
}
