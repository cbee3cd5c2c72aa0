package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Rule describes how a reminder's next occurrence advances after it fires.
type Rule string

const (
	RuleOnce    Rule = "once"
	RuleDaily   Rule = "daily"
	RuleWeekly  Rule = "weekly"
	RuleMonthly Rule = "monthly"
)

// Status is the scheduling status of a reminder.
type Status string

const (
	StatusActive Status = "active"
	// StatusSent is terminal: only once-only reminders reach it.
	StatusSent Status = "sent"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrAlreadySent        = errors.New("reminder already sent")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Valid reports whether r is one of the known rules.
func (r Rule) Valid() bool {
	switch r {
	case RuleOnce, RuleDaily, RuleWeekly, RuleMonthly:
		return true
	default:
		return false
	}
}

// IsRecurring reports whether r keeps the reminder alive after a send.
func (r Rule) IsRecurring() bool {
	return r == RuleDaily || r == RuleWeekly || r == RuleMonthly
}

// Rules is the non-empty set of recurrence rules attached to a reminder.
type Rules []Rule

// HasRecurring reports whether any rule other than once is present.
func (rs Rules) HasRecurring() bool {
	for _, r := range rs {
		if r.IsRecurring() {
			return true
		}
	}
	return false
}

// Contains reports whether rule is in the set.
func (rs Rules) Contains(rule Rule) bool {
	for _, r := range rs {
		if r == rule {
			return true
		}
	}
	return false
}

func (rs Rules) Strings() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

func (rs Rules) String() string {
	return strings.Join(rs.Strings(), ",")
}

// ParseRules normalizes raw rule names: trimmed, lower-cased, duplicates
// dropped with first-seen order kept. An empty result or an unknown name is
// a validation error.
func ParseRules(raw []string) (Rules, error) {
	out := make(Rules, 0, len(raw))
	for _, s := range raw {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		rule := Rule(s)
		if !rule.Valid() {
			return nil, fmt.Errorf("%w: unknown recurrence rule %q", ErrValidation, s)
		}
		if out.Contains(rule) {
			continue
		}
		out = append(out, rule)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one recurrence rule is required", ErrValidation)
	}
	return out, nil
}

// Reminder is a timed notification owned by a user.
type Reminder struct {
	ID             string     `json:"id" bson:"_id"`
	OwnerID        string     `json:"ownerId" bson:"ownerId"`
	Title          string     `json:"title" bson:"title"`
	Description    string     `json:"description" bson:"description"`
	EventAt        time.Time  `json:"eventAt" bson:"eventAt"`
	NotifyEmail    string     `json:"notifyEmail" bson:"notifyEmail"`
	NextOccurrence time.Time  `json:"nextOccurrence" bson:"nextOccurrence"`
	Rules          Rules      `json:"rules" bson:"rules"`
	Status         Status     `json:"status" bson:"status"`
	CreatedAt      time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt" bson:"updatedAt"`
	LastSentAt     *time.Time `json:"lastSentAt,omitempty" bson:"lastSentAt,omitempty"`
	SentAt         *time.Time `json:"sentAt,omitempty" bson:"sentAt,omitempty"`
}

// IsDue reports whether the reminder is active and its next occurrence is at
// or before now.
func (r *Reminder) IsDue(now time.Time) bool {
	return r.Status == StatusActive && !r.NextOccurrence.After(now)
}

// IsOnceOnly reports whether the reminder terminates after its next send.
func (r *Reminder) IsOnceOnly() bool {
	return !r.Rules.HasRecurring()
}

// Validate checks the invariants every stored reminder must hold.
func (r *Reminder) Validate() error {
	switch {
	case strings.TrimSpace(r.Title) == "":
		return fmt.Errorf("%w: title is required", ErrValidation)
	case strings.TrimSpace(r.Description) == "":
		return fmt.Errorf("%w: description is required", ErrValidation)
	case strings.TrimSpace(r.NotifyEmail) == "":
		return fmt.Errorf("%w: notify email is required", ErrValidation)
	case r.EventAt.IsZero():
		return fmt.Errorf("%w: event date is required", ErrValidation)
	case r.NextOccurrence.IsZero():
		return fmt.Errorf("%w: reminder date is required", ErrValidation)
	case len(r.Rules) == 0:
		return fmt.Errorf("%w: at least one recurrence rule is required", ErrValidation)
	}
	for _, rule := range r.Rules {
		if !rule.Valid() {
			return fmt.Errorf("%w: unknown recurrence rule %q", ErrValidation, rule)
		}
	}
	if r.Status == StatusSent && r.Rules.HasRecurring() {
		return fmt.Errorf("%w: a sent reminder cannot carry a recurring rule", ErrValidation)
	}
	return nil
}
