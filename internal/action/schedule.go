package action

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ParseAt normalizes a clock-time schedule to canonical HH:MM form.
//
// It accepts "HH:MM" directly, or a natural-language phrase such as
// "9am" or "at noon", resolved through the when parser. Only the
// time-of-day component is kept; date phrases ("next tuesday") are
// rejected so a daily schedule can't silently absorb a one-off date.
func ParseAt(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty schedule")
	}

	if t, err := time.Parse("15:04", s); err == nil {
		return t.Format("15:04"), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	r, err := w.Parse(s, base)
	if err != nil {
		return "", fmt.Errorf("failed to parse schedule %q: %w", s, err)
	}
	if r == nil {
		return "", fmt.Errorf("unrecognized schedule %q", s)
	}
	if r.Time.Year() != base.Year() || r.Time.Month() != base.Month() || r.Time.Day() != base.Day() {
		return "", fmt.Errorf("schedule %q names a date, expected a time of day", s)
	}

	return r.Time.Format("15:04"), nil
}
