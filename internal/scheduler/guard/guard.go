package guard

import (
	"errors"
	"strings"
)

var (
	ErrPeriodCompleted = errors.New("decay_period_completed")
	ErrInvalidPeriod   = errors.New("decay_period_invalid")
)

// EnsureDecayDue reports whether the decay sweep still has work for current,
// given the last period this process finished cleanly.
func EnsureDecayDue(completed, current string) error {
	if strings.TrimSpace(current) == "" {
		return ErrInvalidPeriod
	}
	if completed == current {
		return ErrPeriodCompleted
	}
	return nil
}
