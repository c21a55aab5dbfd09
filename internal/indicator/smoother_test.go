package indicator

import "testing"

func TestSMA_Rolling(t *testing.T) {
	s := NewSMA(3)
	for _, x := range []float64{1, 2} {
		s.Update(x)
	}
	if s.Ready() {
		t.Fatal("SMA ready before period values")
	}
	assertClose(t, "partial", s.Value(), 1.5, 1e-12)

	for _, x := range []float64{3, 4, 5} {
		s.Update(x)
	}
	if !s.Ready() {
		t.Fatal("SMA not ready")
	}
	// window is {3, 4, 5}
	assertClose(t, "SMA", s.Value(), 4, 1e-12)
}

func TestEMA_SeedThenSmooth(t *testing.T) {
	e := NewEMA(3) // k = 0.5
	for _, x := range []float64{2, 4, 6} {
		e.Update(x)
	}
	assertClose(t, "seed", e.Value(), 4, 1e-12)
	e.Update(8)
	assertClose(t, "EMA", e.Value(), 6, 1e-12) // 8*0.5 + 4*0.5
}

func TestSMMA_Wilder(t *testing.T) {
	w := NewSMMA(4) // k = 0.25
	for _, x := range []float64{1, 1, 1, 1} {
		w.Update(x)
	}
	w.Update(5)
	assertClose(t, "SMMA", w.Value(), 2, 1e-12) // 5*0.25 + 1*0.75
}

func TestNewSmoother(t *testing.T) {
	for _, m := range []ATRMethod{ATRSimple, ATRExponential, ATRWilder, ""} {
		if _, err := NewSmoother(m, 5); err != nil {
			t.Errorf("%q: %v", m, err)
		}
	}
	if _, err := NewSmoother("hull", 5); err == nil {
		t.Error("expected error for unknown method")
	}
}
