// Package recurrence computes the next occurrence of a recurring reminder.
//
// All arithmetic runs on UTC calendar components (year, month, day, hour,
// minute). Seconds and sub-second parts are dropped.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"remindr/internal/models"
)

// ErrNotRecurring is returned for rules that never produce a next occurrence.
var ErrNotRecurring = errors.New("recurrence: rule does not recur")

// Priority is the order in which a recurring rule is chosen when a reminder
// carries more than one.
var Priority = []models.Rule{models.RuleDaily, models.RuleWeekly, models.RuleMonthly}

// Next returns the occurrence that follows current under rule.
//
// Monthly keeps the day of month when the target month has it and clamps to
// the target month's last day otherwise (Jan 31 -> Feb 28/29). The clamp is
// computed from current alone, so a clamped series stays on the clamped day.
func Next(current time.Time, rule models.Rule) (time.Time, error) {
	c := current.UTC()
	year, month, day := c.Date()
	hour, minute := c.Hour(), c.Minute()

	switch rule {
	case models.RuleDaily:
		return time.Date(year, month, day+1, hour, minute, 0, 0, time.UTC), nil
	case models.RuleWeekly:
		return time.Date(year, month, day+7, hour, minute, 0, 0, time.UTC), nil
	case models.RuleMonthly:
		ty, tm := year, month+1
		if tm > time.December {
			ty, tm = ty+1, time.January
		}
		if last := DaysIn(ty, tm); day > last {
			day = last
		}
		return time.Date(ty, tm, day, hour, minute, 0, 0, time.UTC), nil
	case models.RuleOnce:
		return time.Time{}, ErrNotRecurring
	default:
		return time.Time{}, fmt.Errorf("recurrence: unknown rule %q", rule)
	}
}

// Select picks the recurring rule that drives scheduling. It returns false
// when rules holds no recurring rule.
func Select(rules models.Rules) (models.Rule, bool) {
	for _, candidate := range Priority {
		if rules.Contains(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// DaysIn returns the number of days in month of year.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
