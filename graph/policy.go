package graph

import "time"

// RetryPolicy configures automatic retry behavior for a node (§4.3 step
// 4). The sleep after failed attempt n (1-based) is
// BackoffMS * BackoffMultiplier^(n-1) milliseconds; Jitter, when set,
// adds a bounded random component on top — an optional knob the spec
// doesn't require, kept at zero by default so the documented formula
// holds exactly.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries including the first,
	// must be >= 1.
	MaxAttempts int

	BackoffMS         int64
	BackoffMultiplier float64

	// Jitter adds up to this much extra random delay per attempt.
	// Zero by default.
	Jitter time.Duration

	// RetryOn decides whether a given error is worth retrying at all.
	// If nil, every error is retryable up to MaxAttempts.
	RetryOn func(error) bool
}

// Validate reports whether the policy's fields are internally
// consistent.
func (p *RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if p.BackoffMultiplier < 0 {
		return ErrInvalidRetryPolicy
	}
	return nil
}

func (p *RetryPolicy) retryable(err error) bool {
	if p.RetryOn == nil {
		return true
	}
	return p.RetryOn(err)
}

// backoffDelay computes the sleep before retry attempt n (the attempt
// about to run, 1-based: attempt=2 is the first retry after the
// original try). attempt must be >= 2.
func (p *RetryPolicy) backoffDelay(attempt int, rng func(time.Duration) time.Duration) time.Duration {
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	delay := float64(p.BackoffMS)
	for i := 1; i < attempt-1; i++ {
		delay *= mult
	}
	d := time.Duration(delay) * time.Millisecond
	if p.Jitter > 0 && rng != nil {
		d += rng(p.Jitter)
	}
	return d
}
