package models

import (
	"fmt"
	"strings"
	"time"
)

// InputLayout is the minute-precision form submitted by date and time pickers.
const InputLayout = "2006-01-02T15:04"

// DisplayLayout renders instants as DD/MM/YYYY HH:MM.
const DisplayLayout = "02/01/2006 15:04"

// ParseInstant reads s as a UTC instant. The picker form carries no offset
// and its clock values are kept as-is; RFC3339 input is converted to UTC.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrValidation)
	}
	if t, err := time.ParseInLocation(InputLayout, s, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DDTHH:mm", ErrValidation, s)
}

// FormatDisplay formats t from its UTC components.
func FormatDisplay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DisplayLayout)
}
