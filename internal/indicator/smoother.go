package indicator

import "fmt"

// Smoother averages a stream of values fed oldest first.
type Smoother interface {
	Update(x float64)
	Value() float64
	Ready() bool
}

// SMA is a simple moving average over a rolling window.
// Uses a preallocated circular buffer.
type SMA struct {
	period int
	buf    []float64
	idx    int // next write position
	count  int
	sum    float64
}

// NewSMA creates a rolling mean over period values.
func NewSMA(period int) *SMA {
	return &SMA{period: period, buf: make([]float64, period)}
}

func (s *SMA) Update(x float64) {
	if s.count >= s.period {
		// drop the value being overwritten
		s.sum -= s.buf[s.idx]
	}
	s.buf[s.idx] = x
	s.sum += x
	s.idx = (s.idx + 1) % s.period
	s.count++
}

func (s *SMA) Value() float64 {
	if s.count == 0 {
		return 0
	}
	n := s.count
	if n > s.period {
		n = s.period
	}
	return s.sum / float64(n)
}

func (s *SMA) Ready() bool { return s.count >= s.period }

// EMA seeds with the mean of the first period values, then applies
// v = x*k + v*(1-k) to every later value. O(1) per update.
type EMA struct {
	period  int
	k       float64
	count   int
	sum     float64
	current float64
}

// NewEMA creates an exponential average with k = 2/(period+1).
func NewEMA(period int) *EMA {
	return &EMA{period: period, k: 2.0 / float64(period+1)}
}

// NewSMMA creates Wilder's smoothed average, an EMA with k = 1/period.
func NewSMMA(period int) *EMA {
	return &EMA{period: period, k: 1.0 / float64(period)}
}

func (e *EMA) Update(x float64) {
	e.count++
	if e.count <= e.period {
		e.sum += x
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}
	e.current = x*e.k + e.current*(1-e.k)
}

func (e *EMA) Value() float64 {
	if e.count < e.period && e.count > 0 {
		return e.sum / float64(e.count)
	}
	return e.current
}

func (e *EMA) Ready() bool { return e.count >= e.period }

// NewSmoother returns the smoother behind an ATR method.
func NewSmoother(method ATRMethod, period int) (Smoother, error) {
	switch method {
	case ATRSimple:
		return NewSMA(period), nil
	case ATRExponential:
		return NewEMA(period), nil
	case ATRWilder, "":
		return NewSMMA(period), nil
	}
	return nil, fmt.Errorf("unknown ATR method %q", method)
}
