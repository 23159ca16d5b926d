package qrefresh

import (
	"math/cmplx"
	"time"
)

// Syndrome flags the three error types in X, Y, Z order. 1 means present.
type Syndrome [3]uint8

// DecodeSyndrome reads bits 0, 1 and 2 of the device byte as X, Y and Z.
func DecodeSyndrome(b byte) Syndrome {
	return Syndrome{
		b & 1,
		(b >> 1) & 1,
		(b >> 2) & 1,
	}
}

// Count is the number of error flags set.
func (s Syndrome) Count() int {
	n := 0
	for _, bit := range s {
		n += int(bit)
	}
	return n
}

// Clear reports whether no error is flagged.
func (s Syndrome) Clear() bool {
	return s.Count() == 0
}

/*
QuantumState is the controller's record of one qubit. Alpha and Beta are
the |0⟩ and |1⟩ coefficients, normalised when the record is created.
Phase accumulates without bound. CoherenceTime is in seconds.
*/
type QuantumState struct {
	Alpha         complex128
	Beta          complex128
	Phase         float64
	Fidelity      float64
	Syndrome      Syndrome
	LastRefresh   time.Time
	CoherenceTime float64
}

// Norm returns ‖α‖²+‖β‖², which is 1 for every state this package creates.
func (qs QuantumState) Norm() float64 {
	a := cmplx.Abs(qs.Alpha)
	b := cmplx.Abs(qs.Beta)
	return a*a + b*b
}

// Probability of reading |0⟩ and |1⟩ respectively.
func (qs QuantumState) Probability() (p0, p1 float64) {
	a := cmplx.Abs(qs.Alpha)
	b := cmplx.Abs(qs.Beta)
	return a * a, b * b
}
