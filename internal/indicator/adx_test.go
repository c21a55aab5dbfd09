package indicator

import (
	"errors"
	"testing"

	"volsignal/internal/model"
)

func TestDirectionalMovement(t *testing.T) {
	prev := model.Bar{Open: 9, High: 10, Low: 8, Close: 9}

	p, m := DirectionalMovement(model.Bar{Open: 9, High: 12, Low: 8.5, Close: 11}, prev)
	if p != 2 || m != 0 {
		t.Errorf("up move: +DM=%v -DM=%v, want 2, 0", p, m)
	}
	p, m = DirectionalMovement(model.Bar{Open: 8, High: 10.5, Low: 5, Close: 6}, prev)
	if p != 0 || m != 3 {
		t.Errorf("down move: +DM=%v -DM=%v, want 0, 3", p, m)
	}
	// outside bar with equal moves: neither counts
	p, m = DirectionalMovement(model.Bar{Open: 9, High: 11, Low: 7, Close: 9}, prev)
	if p != 0 || m != 0 {
		t.Errorf("equal moves: +DM=%v -DM=%v, want 0, 0", p, m)
	}
}

func TestADX_SingleWindow_WorkedExample(t *testing.T) {
	// Pairs (newest three):
	//   b1 vs b0: up=2, down=-1 → +DM 2; TR = max(2, 2.5, 0.5) = 2.5
	//   b2 vs b1: up=1, down=-1 → +DM 1; TR = max(2, 1.5, 0.5) = 2
	//   b3 vs b2: up=-0.5, down=1 → -DM 1; TR = max(2.5, 0.5, 2) = 2.5
	// ΣTR = 7, Σ+DM = 3, Σ-DM = 1
	// +DI = 300/7 ≈ 42.857143, -DI = 100/7 ≈ 14.285714
	// DX = 100 * (200/7) / (400/7) = 50
	s := chronological(t,
		ohlc(0, 9.5, 10, 9, 9.5),
		ohlc(1, 10.5, 12, 10, 11.5),
		ohlc(2, 12, 13, 11, 12),
		ohlc(3, 12, 12.5, 10, 10.5),
	)
	d, err := AverageDirectionalIndex(s, 3, ADXSingleWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertClose(t, "+DI", d.PlusDI, 300.0/7.0, 1e-9)
	assertClose(t, "-DI", d.MinusDI, 100.0/7.0, 1e-9)
	assertClose(t, "ADX", d.ADX, 50, 1e-9)
	if d.Trend() != model.TrendBullish {
		t.Errorf("trend = %s, want Bullish", d.Trend())
	}
}

func TestADX_EqualDI_IsZeroNotError(t *testing.T) {
	// one up move of 1 and one down move of 1 → +DI == -DI > 0 → DX = 0
	s := chronological(t,
		ohlc(0, 9, 10, 8, 9),
		ohlc(1, 9, 11, 8, 9),
		ohlc(2, 9, 11, 7, 9),
	)
	d, err := AverageDirectionalIndex(s, 2, ADXSingleWindow)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.ADX != 0 {
		t.Errorf("ADX = %v, want 0", d.ADX)
	}
	if d.PlusDI != d.MinusDI || d.PlusDI == 0 {
		t.Errorf("expected equal non-zero DIs, got +%v -%v", d.PlusDI, d.MinusDI)
	}
	if d.Trend() != model.TrendBearish {
		t.Errorf("tie must resolve to Bearish, got %s", d.Trend())
	}
}

func TestADX_NoDirectionalMovement_DivisionByZero(t *testing.T) {
	s := chronological(t,
		ohlc(0, 9, 10, 8, 9),
		ohlc(1, 9, 10, 8, 9),
		ohlc(2, 9, 10, 8, 9),
	)
	_, err := AverageDirectionalIndex(s, 2, ADXSingleWindow)
	if !errors.Is(err, model.ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestADX_SingleWindow_InsufficientData(t *testing.T) {
	s := chronological(t, ohlc(0, 9, 10, 8, 9), ohlc(1, 9, 11, 8, 9))
	_, err := AverageDirectionalIndex(s, 2, ADXSingleWindow)
	if !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func uptrend(n int) []model.Bar {
	bars := make([]model.Bar, n)
	for k := range bars {
		f := float64(k)
		bars[k] = ohlc(k, 9+f, 10+f, 8+f, 9+f)
	}
	return bars
}

func TestADX_Wilder_SteadyUptrend(t *testing.T) {
	// Every pair: +DM 1, -DM 0, TR 2 → +DI 50, -DI 0, DX 100 at every step.
	s := chronological(t, uptrend(12)...)
	d, err := AverageDirectionalIndex(s, 5, ADXWilder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertClose(t, "ADX", d.ADX, 100, 1e-9)
	assertClose(t, "+DI", d.PlusDI, 50, 1e-9)
	assertClose(t, "-DI", d.MinusDI, 0, 1e-12)
	if d.Trend() != model.TrendBullish {
		t.Errorf("trend = %s", d.Trend())
	}
}

func TestADX_Wilder_NeedsTwoPeriods(t *testing.T) {
	_, err := AverageDirectionalIndex(chronological(t, uptrend(9)...), 5, ADXWilder)
	if !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("9 bars, period 5: expected ErrInsufficientData, got %v", err)
	}
	if _, err := AverageDirectionalIndex(chronological(t, uptrend(10)...), 5, ADXWilder); err != nil {
		t.Fatalf("10 bars, period 5: unexpected error %v", err)
	}
}

func TestADX_Wilder_WorkedExample_Period2(t *testing.T) {
	// pairs chronological: (+DM 1, -DM 0, TR 2) (+1, 0, 2) (0, 3, 4)
	// first window: ΣTR 4, Σ+DM 2, Σ-DM 0 → +DI 50, -DI 0, DX 100
	// smoothed: sTR = 4 - 2 + 4 = 6, s+ = 2 - 1 + 0 = 1, s- = 0 - 0 + 3 = 3
	//   → +DI 16.6667, -DI 50, DX = 100 * 33.3333 / 66.6667 = 50
	// ADX = mean(100, 50) = 75
	s := chronological(t,
		ohlc(0, 9, 10, 8, 9),
		ohlc(1, 10, 11, 9, 10),
		ohlc(2, 11, 12, 10, 11),
		ohlc(3, 10, 11, 7, 9),
	)
	w, err := AverageDirectionalIndex(s, 2, ADXWilder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertClose(t, "ADX", w.ADX, 75, 1e-9)
	assertClose(t, "+DI", w.PlusDI, 100.0/6.0, 1e-9)
	assertClose(t, "-DI", w.MinusDI, 50, 1e-9)
	if w.Trend() != model.TrendBearish {
		t.Errorf("trend = %s, want Bearish", w.Trend())
	}
}
