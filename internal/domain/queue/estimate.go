package queue

import "time"

// DefaultAverageService is the assumed length of one consultation.
const DefaultAverageService = 600 * time.Second

// Estimator turns queue positions into wait times. Estimates are advisory:
// a priority arrival can push everyone behind it back by one slot.
type Estimator struct {
	avg int64 // seconds
}

func NewEstimator(avg time.Duration) *Estimator {
	secs := int64(avg / time.Second)
	if secs <= 0 {
		secs = int64(DefaultAverageService / time.Second)
	}
	return &Estimator{avg: secs}
}

// AverageSeconds is the per-patient service time used by every estimate.
func (e *Estimator) AverageSeconds() int64 { return e.avg }

// EstimateTotal is the wait for the patient at 1-based position p.
func (e *Estimator) EstimateTotal(p int) int64 {
	if p <= 0 {
		return 0
	}
	return int64(p) * e.avg
}

// Remaining subtracts the whole seconds already waited since createdAt from
// EstimateTotal, floored at zero.
func (e *Estimator) Remaining(p int, createdAt, now time.Time) int64 {
	elapsed := int64(now.Sub(createdAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	rem := e.EstimateTotal(p) - elapsed
	if rem < 0 {
		return 0
	}
	return rem
}

// ProspectiveWait is the wait for someone who would join behind
// waitingCount patients.
func (e *Estimator) ProspectiveWait(waitingCount int) Estimate {
	if waitingCount < 0 {
		waitingCount = 0
	}
	secs := int64(waitingCount+1) * e.avg
	return Estimate{
		WaitingCount:         waitingCount,
		EstimatedWaitSeconds: secs,
		EstimatedWaitMinutes: secs / 60,
	}
}
