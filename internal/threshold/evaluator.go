// Package threshold decides whether an indicator value puts an instrument
// in alert. It is stateless: whether an episode is already open is supplied
// by the caller.
package threshold

import "fmt"

// Decision is the outcome of one evaluation.
type Decision struct {
	InAlert bool
}

// Evaluate reports metric >= threshold (inclusive boundary).
func Evaluate(metric, threshold float64) Decision {
	return Decision{InAlert: metric >= threshold}
}

// Evaluator layers an optional hysteresis band on top of Evaluate.
//
// Entering always requires metric >= threshold. With 0 < ExitRatio < 1 an
// open episode is only left once metric < threshold*ExitRatio. A zero
// ExitRatio (or 1) disables the band.
type Evaluator struct {
	ExitRatio float64
}

// NewEvaluator validates exitRatio and returns an Evaluator.
func NewEvaluator(exitRatio float64) (Evaluator, error) {
	if exitRatio < 0 || exitRatio > 1 {
		return Evaluator{}, fmt.Errorf("threshold: exit ratio %v outside [0, 1]", exitRatio)
	}
	return Evaluator{ExitRatio: exitRatio}, nil
}

// Evaluate decides the alert state given whether an episode is currently open.
func (e Evaluator) Evaluate(metric, threshold float64, inEpisode bool) Decision {
	if inEpisode && e.hysteresis() {
		return Decision{InAlert: metric >= threshold*e.ExitRatio}
	}
	return Evaluate(metric, threshold)
}

func (e Evaluator) hysteresis() bool {
	return e.ExitRatio > 0 && e.ExitRatio < 1
}
