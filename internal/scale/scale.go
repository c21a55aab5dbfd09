// Package scale maps ATR% onto a small discrete volatility level for display.
// It is presentation only; alerting never reads it.
package scale

import "math"

// Scale is a bounded integer scale 1..Max where a value exactly at the
// threshold lands on Pivot.
type Scale struct {
	Max   int
	Pivot int
}

var (
	// Ten is the 1–10 scale with the threshold at 6.
	Ten = Scale{Max: 10, Pivot: 6}
	// Five is the 1–5 variant with the threshold at 3.
	Five = Scale{Max: 5, Pivot: 3}
)

// Level returns round(atrPercent/threshold * Pivot) clamped to [1, Max].
// A non-positive threshold or a non-finite input yields 1.
func (s Scale) Level(atrPercent, threshold float64) int {
	if s.Max < 1 {
		return 1
	}
	if threshold <= 0 || math.IsNaN(atrPercent) || math.IsInf(atrPercent, 0) {
		return 1
	}
	lvl := int(math.Round(atrPercent / threshold * float64(s.Pivot)))
	if lvl < 1 {
		return 1
	}
	if lvl > s.Max {
		return s.Max
	}
	return lvl
}

// Bar renders the level as filled and empty cells, e.g. "██████░░░░".
func (s Scale) Bar(level int) string {
	if level < 0 {
		level = 0
	}
	if level > s.Max {
		level = s.Max
	}
	out := make([]rune, 0, s.Max)
	for i := 0; i < s.Max; i++ {
		if i < level {
			out = append(out, '█')
		} else {
			out = append(out, '░')
		}
	}
	return string(out)
}
