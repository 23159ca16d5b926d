package qrefresh

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// QubitStatus is one qubit as Status reports it.
type QubitStatus struct {
	Fidelity      float64 `json:"fidelity" yaml:"fidelity" msgpack:"fidelity"`
	CoherenceTime float64 `json:"coherence_time" yaml:"coherence_time" msgpack:"coherence_time"`
	Errors        int     `json:"errors" yaml:"errors" msgpack:"errors"`
}

// Status is a point-in-time report of the controller.
type Status struct {
	Qubits          map[string]QubitStatus `json:"qubits" yaml:"qubits" msgpack:"qubits"`
	AverageFidelity float64                `json:"average_fidelity" yaml:"average_fidelity" msgpack:"average_fidelity"`
	TotalBerryPhase float64                `json:"total_berry_phase" yaml:"total_berry_phase" msgpack:"total_berry_phase"`
	RefreshRate     float64                `json:"refresh_rate" yaml:"refresh_rate" msgpack:"refresh_rate"`
}

/*
Status reports the stored fidelity, coherence time and error count of
every qubit, their mean fidelity (0 with no qubits), the Berry phase total
and the current refresh rate in Hz. Nothing is modified.
*/
func (c *Controller) Status() Status {
	qubits := c.space.Qubits()

	status := Status{
		Qubits:          make(map[string]QubitStatus, len(qubits)),
		TotalBerryPhase: c.BerryPhase(),
		RefreshRate:     c.cadence.Rate(),
	}

	fidelities := make([]float64, 0, len(qubits))

	for _, q := range qubits {
		state := q.State()

		status.Qubits[q.ID] = QubitStatus{
			Fidelity:      state.Fidelity,
			CoherenceTime: state.CoherenceTime,
			Errors:        state.Syndrome.Count(),
		}
		fidelities = append(fidelities, state.Fidelity)
	}

	if len(fidelities) > 0 {
		status.AverageFidelity = stat.Mean(fidelities, nil)
	}

	return status
}

// EncodeStatus writes status to w as json, yaml or msgpack.
func EncodeStatus(w io.Writer, format string, status Status) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(status)
	case "msgpack":
		return msgpack.NewEncoder(w).Encode(status)
	default:
		return fmt.Errorf("unsupported status format %q", format)
	}
}
