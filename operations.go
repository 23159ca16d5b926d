package qrefresh

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// corrections maps syndrome bits, in order, to the Pauli gate that undoes them.
var corrections = [3]Opcode{OpPauliX, OpPauliY, OpPauliZ}

/*
ZenoMeasure performs a weak measurement of id. A weak reading below the
strength limit means the measurement kept the state pinned, and the
qubit's coherence time is stretched by the Zeno gain.
*/
func (c *Controller) ZenoMeasure(ctx context.Context, id string) error {
	q, err := c.lookup(id)
	if err != nil {
		return c.tolerate(err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return c.zeno(ctx, q)
}

// zeno expects q.mu to be held.
func (c *Controller) zeno(ctx context.Context, q *Qubit) error {
	resp, err := c.link.Transact(ctx, AddressFrame(OpWeakMeasure, q.Address), OpWeakMeasure.ResponseLength())
	if err != nil {
		return fmt.Errorf("zeno measurement of %q: %w", q.ID, err)
	}

	strength := math.Float32frombits(binary.LittleEndian.Uint32(resp))

	if float64(strength) < c.config.ZenoStrengthLimit {
		q.state.CoherenceTime *= c.config.ZenoGain
	}

	return nil
}

/*
MeasureSyndrome reads the three-bit error syndrome of id from the device.
The reading is returned, not stored; ApplyErrorCorrection is what acts on
it.
*/
func (c *Controller) MeasureSyndrome(ctx context.Context, id string) (Syndrome, error) {
	address, ok, err := c.wireAddress(id)
	if err != nil || !ok {
		return Syndrome{}, err
	}

	return c.syndrome(ctx, address)
}

func (c *Controller) syndrome(ctx context.Context, address byte) (Syndrome, error) {
	resp, err := c.link.Transact(ctx, AddressFrame(OpSyndrome, address), OpSyndrome.ResponseLength())
	if err != nil {
		return Syndrome{}, err
	}

	return DecodeSyndrome(resp[0]), nil
}

/*
PauliX, PauliY and PauliZ send the matching single-qubit gate. They touch
neither the stored state nor the syndrome; correction is what tracks
errors.
*/
func (c *Controller) PauliX(ctx context.Context, id string) error {
	return c.pauli(ctx, id, OpPauliX)
}

// PauliY sends the Y gate.
func (c *Controller) PauliY(ctx context.Context, id string) error {
	return c.pauli(ctx, id, OpPauliY)
}

// PauliZ sends the Z gate.
func (c *Controller) PauliZ(ctx context.Context, id string) error {
	return c.pauli(ctx, id, OpPauliZ)
}

func (c *Controller) pauli(ctx context.Context, id string, op Opcode) error {
	address, ok, err := c.wireAddress(id)
	if err != nil || !ok {
		return err
	}

	return c.link.Send(ctx, AddressFrame(op, address))
}

/*
ApplyErrorCorrection reads the syndrome of id, applies X, Y and Z for the
set bits in that order, and recomputes the stored fidelity. The reading
only decides which gates go out; the stored syndrome is left alone, so a
clear reading changes nothing but the fidelity.
*/
func (c *Controller) ApplyErrorCorrection(ctx context.Context, id string) error {
	q, err := c.lookup(id)
	if err != nil {
		return c.tolerate(err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return c.correct(ctx, q)
}

// correct expects q.mu to be held.
func (c *Controller) correct(ctx context.Context, q *Qubit) error {
	syndrome, err := c.syndrome(ctx, q.Address)
	if err != nil {
		return fmt.Errorf("syndrome of %q: %w", q.ID, err)
	}

	for bit, op := range corrections {
		if syndrome[bit] != 1 {
			continue
		}

		if err := c.link.Send(ctx, AddressFrame(op, q.Address)); err != nil {
			return fmt.Errorf("correcting %q: %w", q.ID, err)
		}

		c.metrics.recordCorrection(op)
	}

	q.state.Fidelity = Fidelity(q.state, c.clock.Now())
	c.metrics.recordFidelity(q.ID, q.state.Fidelity)

	c.logger.Debug("corrected", "qubit", q.ID, "syndrome", syndrome, "fidelity", q.state.Fidelity)

	return nil
}

/*
GeometricPhaseGate drives id around a closed path in PhaseSteps steps,
sending the fraction of the angle reached at each step and waiting the
settle delay in between. Only when every step went out does the angle
land on the qubit's phase and the Berry phase total. The qubit stays
locked for the whole gate, which keeps the refresh loop off it.
*/
func (c *Controller) GeometricPhaseGate(ctx context.Context, id string, angle float64) error {
	q, err := c.lookup(id)
	if err != nil {
		return c.tolerate(err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	steps := c.config.PhaseSteps

	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("phase gate on %q cancelled at step %d: %w", id, step, err)
		}

		fraction := angle * float64(step) / float64(steps)

		if err := c.link.Send(ctx, PhaseStepFrame(q.Address, fraction)); err != nil {
			return fmt.Errorf("phase gate on %q at step %d: %w", id, step, err)
		}

		if err := c.clock.Sleep(ctx, c.config.SettleDelay); err != nil {
			return fmt.Errorf("phase gate on %q cancelled at step %d: %w", id, step, err)
		}
	}

	q.state.Phase += angle
	c.addBerryPhase(angle)

	return nil
}

/*
Entangle sends the entangle command for first and second, then copies
second's stored syndrome onto first. The copy only happens when both
qubits are registered; the ledger records the operation either way.
*/
func (c *Controller) Entangle(ctx context.Context, first, second string) error {
	a, okA, err := c.wireAddress(first)
	if err != nil {
		return err
	}

	b, okB, err := c.wireAddress(second)
	if err != nil {
		return err
	}

	if !okA || !okB {
		return nil
	}

	if err := c.link.Send(ctx, EntangleFrame(a, b)); err != nil {
		return fmt.Errorf("entangling %q with %q: %w", first, second, err)
	}

	qa, hasA := c.space.Get(first)
	qb, hasB := c.space.Get(second)

	if !hasA || !hasB {
		c.ledger.record(c.clock.Now(), first, second, Syndrome{}, false)
		return nil
	}

	syndrome := copySyndrome(qa, qb)
	c.ledger.record(c.clock.Now(), first, second, syndrome, true)

	return nil
}

// copySyndrome locks both qubits in id order and copies src's syndrome to dst.
func copySyndrome(dst, src *Qubit) Syndrome {
	if dst == src {
		dst.mu.Lock()
		defer dst.mu.Unlock()
		return dst.state.Syndrome
	}

	lo, hi := dst, src
	if hi.ID < lo.ID {
		lo, hi = hi, lo
	}

	lo.mu.Lock()
	defer lo.mu.Unlock()
	hi.mu.Lock()
	defer hi.mu.Unlock()

	dst.state.Syndrome = src.state.Syndrome
	return dst.state.Syndrome
}

/*
Measure performs a projective measurement and returns the device's byte.
An unknown id ignored under IgnoreUnknownQubits yields 0 without touching
the device.
*/
func (c *Controller) Measure(ctx context.Context, id string) (byte, error) {
	outcome, _, err := c.measure(ctx, id)
	return outcome, err
}

// measure also reports whether a command went out at all.
func (c *Controller) measure(ctx context.Context, id string) (byte, bool, error) {
	address, ok, err := c.wireAddress(id)
	if err != nil || !ok {
		return 0, false, err
	}

	resp, err := c.link.Transact(ctx, AddressFrame(OpClassicMeasure, address), OpClassicMeasure.ResponseLength())
	if err != nil {
		return 0, true, fmt.Errorf("measuring %q: %w", id, err)
	}

	return resp[0], true, nil
}
