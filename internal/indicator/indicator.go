// Package indicator computes volatility and trend-strength indicators over
// a validated bar series.
//
// Every function here is pure: it reads a model.Series (newest-first), holds
// no state between calls, and is safe to call concurrently for different
// instruments.
package indicator

import (
	"fmt"
	"strings"
)

// ATRMethod selects how true ranges are averaged into an ATR.
// The variants diverge numerically, so the choice is an explicit flag.
type ATRMethod string

const (
	// ATRSimple is the plain mean of the most recent period true ranges.
	ATRSimple ATRMethod = "simple"

	// ATRExponential seeds with the mean of the oldest period true ranges and
	// smooths forward with k = 2/(period+1).
	ATRExponential ATRMethod = "exponential"

	// ATRWilder seeds like ATRExponential and smooths forward with k = 1/period.
	ATRWilder ATRMethod = "wilder"
)

// ADXMethod selects between the single-window DX and Wilder's smoothed ADX.
type ADXMethod string

const (
	// ADXSingleWindow reports the DX of the most recent period bar pairs as the ADX.
	ADXSingleWindow ADXMethod = "single"

	// ADXWilder smooths TR and directional movement with Wilder's method and
	// averages DX over successive windows. Needs 2*period bars.
	ADXWilder ADXMethod = "wilder"
)

// ParseATRMethod maps a config string onto an ATRMethod.
func ParseATRMethod(s string) (ATRMethod, error) {
	switch m := ATRMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case ATRSimple, ATRExponential, ATRWilder:
		return m, nil
	case "":
		return ATRWilder, nil
	}
	return "", fmt.Errorf("unknown ATR method %q", s)
}

// ParseADXMethod maps a config string onto an ADXMethod.
func ParseADXMethod(s string) (ADXMethod, error) {
	switch m := ADXMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case ADXSingleWindow, ADXWilder:
		return m, nil
	case "":
		return ADXSingleWindow, nil
	}
	return "", fmt.Errorf("unknown ADX method %q", s)
}

// MinBars returns the number of bars the given methods need for period.
func MinBars(period int, adx ADXMethod) int {
	if adx == ADXWilder {
		return 2 * period
	}
	return period + 1
}
