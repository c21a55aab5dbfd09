package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseInterval(t *testing.T) {
	good := map[string]time.Duration{
		"1min":  time.Minute,
		"15min": 15 * time.Minute,
		"1h":    time.Hour,
		"4H":    4 * time.Hour,
		"1day":  24 * time.Hour,
		"1week": 7 * 24 * time.Hour,
	}
	for in, want := range good {
		got, err := ParseInterval(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "min", "0min", "-5min", "15m", "1month"} {
		_, err := ParseInterval(in)
		assert.Error(t, err, in)
	}
}
