package qrefresh

import (
	"math"
	"math/cmplx"
	"sync"
	"time"
)

/*
Qubit couples a QuantumState with its identity on the controller and on
the wire. The mutex serialises every mutation of the state: the refresh
loop holds it for a whole measure, correct, timestamp sequence.
*/
type Qubit struct {
	mu      sync.Mutex
	ID      string
	Address byte
	state   QuantumState
}

func newQubit(id string, address byte, state QuantumState) *Qubit {
	return &Qubit{
		ID:      id,
		Address: address,
		state:   state,
	}
}

/*
NewQuantumState normalises (alpha, beta) and returns a fresh record with a
clear syndrome and full fidelity. The initial phase is arg(β) − arg(α).
Any finite pair other than (0, 0) is accepted, however large or small its
components.
*/
func NewQuantumState(alpha, beta complex128, coherence float64, now time.Time) (QuantumState, error) {
	if cmplx.IsNaN(alpha) || cmplx.IsNaN(beta) || cmplx.IsInf(alpha) || cmplx.IsInf(beta) {
		return QuantumState{}, ErrInvalidAmplitude
	}

	scale := max(
		math.Abs(real(alpha)), math.Abs(imag(alpha)),
		math.Abs(real(beta)), math.Abs(imag(beta)),
	)
	if scale == 0 {
		return QuantumState{}, ErrZeroAmplitude
	}

	alpha = shrink(alpha, scale)
	beta = shrink(beta, scale)

	norm := math.Hypot(cmplx.Abs(alpha), cmplx.Abs(beta))

	alpha = shrink(alpha, norm)
	beta = shrink(beta, norm)

	return QuantumState{
		Alpha:         alpha,
		Beta:          beta,
		Phase:         cmplx.Phase(beta) - cmplx.Phase(alpha),
		Fidelity:      1.0,
		LastRefresh:   now,
		CoherenceTime: coherence,
	}, nil
}

// shrink divides both parts of z by the real d.
func shrink(z complex128, d float64) complex128 {
	return complex(real(z)/d, imag(z)/d)
}

// State returns a copy of the current record.
func (q *Qubit) State() QuantumState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

