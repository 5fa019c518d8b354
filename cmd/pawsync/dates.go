package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/pawsitive/pawsync/internal/daylog"
	"github.com/pawsitive/pawsync/internal/schema"
)

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseStartDate accepts YYYY-MM-DD or natural language such as "today"
// or "next friday", relative to now.
func parseStartDate(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "today") {
		return daylog.Today(now), nil
	}
	if t, err := time.Parse(schema.DateLayout, s); err == nil {
		return t.Format(schema.DateLayout), nil
	}
	r, err := dateParser.Parse(s, now)
	if err != nil {
		return "", fmt.Errorf("invalid start date %q: %w", s, err)
	}
	if r == nil {
		return "", fmt.Errorf("invalid start date %q: use YYYY-MM-DD or a phrase like \"next friday\"", s)
	}
	return daylog.Today(r.Time), nil
}

// dayDate resolves a 1-based --day flag for s. Zero selects today, clamped
// to the sitting.
func dayDate(s *schema.Session, day int, now time.Time) (int, string, error) {
	idx := day - 1
	if day == 0 {
		today, err := daylog.DayIndex(s.StartDate, daylog.Today(now))
		if err != nil {
			return 0, "", err
		}
		idx = daylog.ClampDay(s, today)
	} else if idx < 0 || idx >= s.TotalDays {
		return 0, "", fmt.Errorf("day %d is outside the sitting (1-%d)", day, s.TotalDays)
	}
	date, err := daylog.CurrentDate(s, idx)
	return idx, date, err
}
