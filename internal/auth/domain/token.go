package domain

import "time"

// StepUpToken is a signed JWT asserting a completed second factor.
type StepUpToken struct {
	Token     string
	ExpiresAt time.Time
}

// ExpiresIn returns the whole seconds left at now.
func (t StepUpToken) ExpiresIn(now time.Time) int {
	secs := int(t.ExpiresAt.Sub(now).Seconds())
	return max(secs, 0)
}
