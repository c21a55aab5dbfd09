package indicator

import (
	"fmt"
	"math"

	"volsignal/internal/model"
)

// TrueRange is max(high−low, |high−prevClose|, |low−prevClose|).
// previous must be the bar immediately older than current.
func TrueRange(current, previous model.Bar) float64 {
	return math.Max(current.High-current.Low,
		math.Max(math.Abs(current.High-previous.Close), math.Abs(current.Low-previous.Close)))
}

// TrueRanges returns the Len()-1 true ranges of s, newest-first:
// element i is TrueRange(s.At(i), s.At(i+1)).
func TrueRanges(s model.Series) []float64 {
	if s.Len() < 2 {
		return nil
	}
	out := make([]float64, s.Len()-1)
	for i := range out {
		out[i] = TrueRange(s.At(i), s.At(i+1))
	}
	return out
}

// AverageTrueRange computes the ATR of s with the given method.
// It needs at least period+1 bars.
func AverageTrueRange(s model.Series, period int, method ATRMethod) (float64, error) {
	if err := checkPeriod(s, period, period+1); err != nil {
		return 0, err
	}
	sm, err := NewSmoother(method, period)
	if err != nil {
		return 0, err
	}
	trs := TrueRanges(s)
	for i := len(trs) - 1; i >= 0; i-- {
		sm.Update(trs[i])
	}
	return sm.Value(), nil
}

// ATRPercent expresses atr as a percentage of price.
func ATRPercent(atr, price float64) (float64, error) {
	if price <= 0 {
		return math.NaN(), fmt.Errorf("%w: price %v", model.ErrDivisionByZero, price)
	}
	return 100 * atr / price, nil
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func checkPeriod(s model.Series, period, need int) error {
	if period < 1 {
		return fmt.Errorf("%w: %d", model.ErrInvalidPeriod, period)
	}
	if s.Len() < need {
		return fmt.Errorf("%w: %s has %d bars, need %d for period %d",
			model.ErrInsufficientData, s.InstrumentID(), s.Len(), need, period)
	}
	return nil
}
