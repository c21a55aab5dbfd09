package markethours

import (
	"fmt"
	"strings"
	"time"
)

// Holidays is a set of closed calendar dates, keyed "2006-01-02" in the
// session's location.
type Holidays map[string]struct{}

// ParseHolidays parses a comma-separated list of YYYY-MM-DD dates.
func ParseHolidays(s string) (Holidays, error) {
	h := Holidays{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.Parse("2006-01-02", part)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", part, err)
		}
		h[d.Format("2006-01-02")] = struct{}{}
	}
	return h, nil
}

// Contains reports whether t's calendar date (in t's own location) is a holiday.
func (h Holidays) Contains(t time.Time) bool {
	if len(h) == 0 {
		return false
	}
	_, ok := h[t.Format("2006-01-02")]
	return ok
}
