package indicator

import (
	"fmt"
	"math"

	"volsignal/internal/model"
)

// Directional holds the ADX and its directional components, all in 0–100.
type Directional struct {
	ADX     float64 `json:"adx"`
	PlusDI  float64 `json:"plus_di"`
	MinusDI float64 `json:"minus_di"`
}

// Trend is Bullish when +DI exceeds -DI, Bearish otherwise.
func (d Directional) Trend() model.Trend {
	if d.PlusDI > d.MinusDI {
		return model.TrendBullish
	}
	return model.TrendBearish
}

// DirectionalMovement returns (+DM, -DM) for current against the bar before it.
// Only the larger of the two moves counts; the other is zero.
func DirectionalMovement(current, previous model.Bar) (plus, minus float64) {
	up := current.High - previous.High
	down := previous.Low - current.Low
	if up > down && up > 0 {
		plus = up
	}
	if down > up && down > 0 {
		minus = down
	}
	return plus, minus
}

// AverageDirectionalIndex computes ADX, +DI and -DI for s.
//
// ADXSingleWindow sums TR and ±DM over the most recent period bar pairs and
// reports that window's DX as the ADX (period+1 bars). ADXWilder applies
// Wilder smoothing and averages DX across windows (2*period bars).
//
// Returns ErrDivisionByZero when +DI + -DI is zero for the final window.
func AverageDirectionalIndex(s model.Series, period int, method ADXMethod) (Directional, error) {
	switch method {
	case ADXSingleWindow, "":
		if err := checkPeriod(s, period, period+1); err != nil {
			return Directional{}, err
		}
		return singleWindowADX(s, period)
	case ADXWilder:
		if err := checkPeriod(s, period, 2*period); err != nil {
			return Directional{}, err
		}
		return wilderADX(s, period)
	}
	return Directional{}, fmt.Errorf("unknown ADX method %q", method)
}

func singleWindowADX(s model.Series, period int) (Directional, error) {
	var sumTR, sumPlus, sumMinus float64
	for i := 0; i < period; i++ {
		cur, prev := s.At(i), s.At(i+1)
		p, m := DirectionalMovement(cur, prev)
		sumPlus += p
		sumMinus += m
		sumTR += TrueRange(cur, prev)
	}
	plusDI, minusDI := directionalIndices(sumPlus, sumMinus, sumTR)
	dx, ok := directionalIndex(plusDI, minusDI)
	if !ok {
		return Directional{}, fmt.Errorf("%w: %s: no directional movement over %d bars",
			model.ErrDivisionByZero, s.InstrumentID(), period)
	}
	return Directional{ADX: dx, PlusDI: plusDI, MinusDI: minusDI}, nil
}

func wilderADX(s model.Series, period int) (Directional, error) {
	// chronological pair values, oldest first
	m := s.Len() - 1
	tr := make([]float64, m)
	pdm := make([]float64, m)
	mdm := make([]float64, m)
	for j := 0; j < m; j++ {
		i := m - 1 - j
		cur, prev := s.At(i), s.At(i+1)
		tr[j] = TrueRange(cur, prev)
		pdm[j], mdm[j] = DirectionalMovement(cur, prev)
	}

	p := float64(period)
	var sTR, sPlus, sMinus float64
	for j := 0; j < period; j++ {
		sTR += tr[j]
		sPlus += pdm[j]
		sMinus += mdm[j]
	}

	dxs := make([]float64, 0, m-period+1)
	plusDI, minusDI := directionalIndices(sPlus, sMinus, sTR)
	dx, _ := directionalIndex(plusDI, minusDI)
	dxs = append(dxs, dx)

	for j := period; j < m; j++ {
		sTR = sTR - sTR/p + tr[j]
		sPlus = sPlus - sPlus/p + pdm[j]
		sMinus = sMinus - sMinus/p + mdm[j]
		plusDI, minusDI = directionalIndices(sPlus, sMinus, sTR)
		dx, _ = directionalIndex(plusDI, minusDI)
		dxs = append(dxs, dx)
	}

	if _, ok := directionalIndex(plusDI, minusDI); !ok {
		return Directional{}, fmt.Errorf("%w: %s: no directional movement in final window",
			model.ErrDivisionByZero, s.InstrumentID())
	}

	adx := mean(dxs[:period])
	for _, dx := range dxs[period:] {
		adx = (adx*(p-1) + dx) / p
	}
	return Directional{ADX: adx, PlusDI: plusDI, MinusDI: minusDI}, nil
}

func directionalIndices(plusDM, minusDM, tr float64) (plusDI, minusDI float64) {
	if tr == 0 {
		return 0, 0
	}
	return 100 * plusDM / tr, 100 * minusDM / tr
}

// directionalIndex returns DX; ok is false when +DI + -DI is zero.
func directionalIndex(plusDI, minusDI float64) (float64, bool) {
	sum := plusDI + minusDI
	if sum == 0 {
		return 0, false
	}
	return 100 * math.Abs(plusDI-minusDI) / sum, true
}
