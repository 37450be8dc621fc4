package ingest

import "time"

// Backoff schedules the next refresh: Period after a success, and after
// failures Retry doubled per consecutive failure, never beyond Period.
type Backoff struct {
	Period   time.Duration
	Retry    time.Duration
	Failures uint
}

// Next records the outcome of a run and returns the delay until the next one.
func (b *Backoff) Next(success bool) time.Duration {
	if success {
		b.Failures = 0
		return b.Period
	}
	b.Failures++
	retry := b.Retry
	if retry <= 0 || retry > b.Period {
		retry = b.Period
	}
	d := retry
	for i := uint(1); i < b.Failures && d < b.Period; i++ {
		d *= 2
	}
	if d > b.Period {
		d = b.Period
	}
	return d
}
