package qrefresh

import (
	"math"
	"time"
)

// errorWeight is the fidelity lost per flagged syndrome bit.
const errorWeight = 0.1

/*
Fidelity estimates how close state still is to its ideal form at now.
Time since the last refresh decays it exponentially with the coherence
time as constant, and each flagged syndrome bit costs a further 10%.
*/
func Fidelity(state QuantumState, now time.Time) float64 {
	elapsed := now.Sub(state.LastRefresh).Seconds()
	timeFactor := math.Exp(-elapsed / state.CoherenceTime)
	errorFactor := 1.0 - float64(state.Syndrome.Count())*errorWeight

	return timeFactor * errorFactor
}
