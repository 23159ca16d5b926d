package qrefresh

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Gate names a circuit step.
type Gate string

const (
	GateH       Gate = "H"
	GateT       Gate = "T"
	GateCNOT    Gate = "CNOT"
	GateMeasure Gate = "M"
)

/*
Step is one instruction of a circuit. Target is only read by CNOT, where
Qubit is the control.
*/
type Step struct {
	Gate   Gate   `yaml:"gate"`
	Qubit  string `yaml:"qubit"`
	Target string `yaml:"target,omitempty"`
}

// Circuit is an ordered list of steps, usually loaded from YAML.
type Circuit []Step

// LoadCircuit parses a YAML list of steps.
func LoadCircuit(r io.Reader) (Circuit, error) {
	var circuit Circuit

	if err := yaml.NewDecoder(r).Decode(&circuit); err != nil {
		if err == io.EOF {
			return Circuit{}, nil
		}
		return nil, fmt.Errorf("decoding circuit: %w", err)
	}

	return circuit, nil
}

/*
RunCircuit executes the steps in order. H and T are geometric phase gates
of π/2 and π/4, CNOT entangles Qubit with Target, and M measures Qubit,
recording the outcome under its id with the last measurement winning. A
measurement that never reached the device records nothing. Unknown gates are skipped. On failure the outcomes so far are returned
with the error.
*/
func (c *Controller) RunCircuit(ctx context.Context, circuit Circuit) (map[string]byte, error) {
	logger := c.logger.With("run", uuid.NewString())
	logger.Info("running circuit", "steps", len(circuit))

	results := make(map[string]byte)

	for i, step := range circuit {
		var err error

		switch step.Gate {
		case GateH:
			err = c.GeometricPhaseGate(ctx, step.Qubit, math.Pi/2)
		case GateT:
			err = c.GeometricPhaseGate(ctx, step.Qubit, math.Pi/4)
		case GateCNOT:
			err = c.Entangle(ctx, step.Qubit, step.Target)
		case GateMeasure:
			var (
				outcome byte
				sent    bool
			)
			if outcome, sent, err = c.measure(ctx, step.Qubit); err == nil && sent {
				results[step.Qubit] = outcome
			}
		default:
			logger.Debug("skipping unknown gate", "step", i, "gate", step.Gate)
			continue
		}

		if err != nil {
			logger.Error("circuit step failed", "step", i, "gate", step.Gate, "err", err)
			return results, fmt.Errorf("step %d (%s %s): %w", i, step.Gate, step.Qubit, err)
		}
	}

	logger.Info("circuit done", "measurements", len(results))

	return results, nil
}
