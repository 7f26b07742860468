package gvsp

import (
	"math/rand"
	"time"
)

// ResendPlannerState is the lifecycle of a single coalesced range's
// retry attempts (spec.md §4.5.4).
type ResendPlannerState int

const (
	PlannerPending ResendPlannerState = iota
	PlannerWaiting
	PlannerExhausted
)

// ResendPlanner governs retry attempts for one coalesced missing
// range: at most maxRetries, with the next attempt's deadline computed
// as now + baseDelay*attempts + jitter.
type ResendPlanner struct {
	Range       Range
	state       ResendPlannerState
	attempts    int
	maxRetries  int
	baseDelay   time.Duration
	jitterMax   time.Duration
	nextAttempt time.Time
}

// NewResendPlanner creates a planner for r with the given retry budget.
func NewResendPlanner(r Range, maxRetries int, baseDelay, jitterMax time.Duration) *ResendPlanner {
	return &ResendPlanner{
		Range:      r,
		state:      PlannerPending,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		jitterMax:  jitterMax,
	}
}

// State reports the planner's current lifecycle state.
func (p *ResendPlanner) State() ResendPlannerState { return p.state }

// ReadyAt returns the deadline before which no further attempt should
// be issued, valid only while State() == PlannerWaiting.
func (p *ResendPlanner) ReadyAt() time.Time { return p.nextAttempt }

// RecordAttempt advances the planner past an attempt it has just
// issued, scheduling the next or transitioning to Exhausted.
func (p *ResendPlanner) RecordAttempt(now time.Time) {
	p.attempts++
	if p.attempts >= p.maxRetries {
		p.state = PlannerExhausted
		return
	}
	delay := time.Duration(p.attempts) * p.baseDelay
	if p.jitterMax > 0 {
		delay += time.Duration(rand.Int63n(int64(p.jitterMax)))
	}
	p.nextAttempt = now.Add(delay)
	p.state = PlannerWaiting
}

// Due reports whether a new attempt may be issued now.
func (p *ResendPlanner) Due(now time.Time) bool {
	switch p.state {
	case PlannerPending:
		return true
	case PlannerWaiting:
		return !now.Before(p.nextAttempt)
	default:
		return false
	}
}

// Attempts reports how many resend attempts have been issued so far.
func (p *ResendPlanner) Attempts() int { return p.attempts }
