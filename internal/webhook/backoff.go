package webhook

import "time"

// DefaultMaxAttempts applies when a queued event carries no usable limit.
const DefaultMaxAttempts = 5

// backoffTable is indexed by attempt number minus one.
var backoffTable = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	12 * time.Hour,
}

// DelayFor returns the wait before the next attempt once `attempt` attempts
// have failed. Attempts past the end of the table use the last entry and
// anything below 1 uses the first.
func DelayFor(attempt int) time.Duration {
	switch {
	case attempt < 1:
		return backoffTable[0]
	case attempt > len(backoffTable):
		return backoffTable[len(backoffTable)-1]
	default:
		return backoffTable[attempt-1]
	}
}

// RetryDecision is what happens to an event after a failed attempt.
type RetryDecision struct {
	Attempts     int
	Terminal     bool
	ScheduledFor time.Time
}

// DecideRetry applies the retry policy to an event that has just failed at
// failedAt. attempts is the count before this failure.
func DecideRetry(attempts, maxAttempts int, failedAt time.Time) RetryDecision {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	next := attempts + 1
	if next >= maxAttempts {
		return RetryDecision{Attempts: next, Terminal: true}
	}

	return RetryDecision{
		Attempts:     next,
		ScheduledFor: failedAt.Add(DelayFor(next)),
	}
}
