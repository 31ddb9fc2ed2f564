// Package backoff implements the fixed, ordered retry schedule used by the
// subrequest executor and metadata prober: an explicit list of delays,
// clamped to the last entry once exhausted.
package backoff

import "time"

// Schedule is an ordered list of delays applied between retry attempts.
// Attempt 0 is the first retry (after the initial attempt already failed);
// attempts beyond len(Schedule)-1 reuse the last entry.
type Schedule []time.Duration

// Default mirrors spec's example schedule: 100, 200, 400, 800ms.
var Default = Schedule{
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
}

// Delay returns the delay to wait before retry attempt n (0-based).
func (s Schedule) Delay(n int) time.Duration {
	if len(s) == 0 {
		return 0
	}
	if n >= len(s) {
		n = len(s) - 1
	}
	return s[n]
}
