package marketdata

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseInterval converts a Twelve Data interval name ("1min", "15min", "1h",
// "1day", "1week") to its bar spacing.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	units := []struct {
		suffix string
		unit   time.Duration
	}{
		{"min", time.Minute},
		{"h", time.Hour},
		{"day", 24 * time.Hour},
		{"week", 7 * 24 * time.Hour},
	}
	for _, u := range units {
		if !strings.HasSuffix(s, u.suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(s, u.suffix))
		if err != nil || n <= 0 {
			break
		}
		return time.Duration(n) * u.unit, nil
	}
	return 0, fmt.Errorf("unknown bar interval %q", s)
}
