package qrefresh

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/errnie"
)

// maxAddresses is the size of the one-byte device address space.
const maxAddresses = 256

/*
QuantumSpace owns every qubit record and hands out device addresses.
Records are never removed, so a *Qubit obtained from Get stays valid for
the lifetime of the space.
*/
type QuantumSpace struct {
	mu     sync.RWMutex
	qubits map[string]*Qubit
	order  []string
	next   int
	config *Config
	logger *log.Logger
}

/*
NewQuantumSpace creates an empty registry. Addressing follows
config.CharAddressing.
*/
func NewQuantumSpace(config *Config, logger *log.Logger) *QuantumSpace {
	errnie.Info(
		"NewQuantumSpace - charAddressing %v, overwriteOnCreate %v",
		config.CharAddressing,
		config.OverwriteOnCreate,
	)

	return &QuantumSpace{
		qubits: make(map[string]*Qubit),
		order:  make([]string, 0),
		config: config,
		logger: logger.With("component", "space"),
	}
}

/*
Create registers a new qubit. An existing id is an error unless the config
asks for the legacy overwrite, in which case the record is reset in place
and keeps its address.
*/
func (qs *QuantumSpace) Create(id string, alpha, beta complex128, coherence float64, now time.Time) (*Qubit, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	state, err := NewQuantumState(alpha, beta, coherence, now)
	if err != nil {
		return nil, fmt.Errorf("creating qubit %q: %w", id, err)
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()

	if existing, ok := qs.qubits[id]; ok {
		if !qs.config.OverwriteOnCreate {
			return nil, fmt.Errorf("creating qubit %q: %w", id, ErrQubitExists)
		}

		existing.mu.Lock()
		existing.state = state
		existing.mu.Unlock()

		qs.logger.Debug("qubit overwritten", "id", id, "address", existing.Address)
		return existing, nil
	}

	address, err := qs.allocate(id)
	if err != nil {
		return nil, fmt.Errorf("creating qubit %q: %w", id, err)
	}

	q := newQubit(id, address, state)
	qs.qubits[id] = q
	qs.order = append(qs.order, id)

	qs.logger.Debug("qubit created", "id", id, "address", address, "coherence", coherence)
	return q, nil
}

// Reset re-initialises an existing qubit as if it had just been created.
func (qs *QuantumSpace) Reset(id string, alpha, beta complex128, coherence float64, now time.Time) error {
	q, ok := qs.Get(id)
	if !ok {
		return &UnknownQubitError{ID: id}
	}

	state, err := NewQuantumState(alpha, beta, coherence, now)
	if err != nil {
		return fmt.Errorf("resetting qubit %q: %w", id, err)
	}

	q.mu.Lock()
	q.state = state
	q.mu.Unlock()

	return nil
}

// Get returns the qubit registered under id.
func (qs *QuantumSpace) Get(id string) (*Qubit, bool) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	q, ok := qs.qubits[id]
	return q, ok
}

// IDs lists the registered ids in creation order.
func (qs *QuantumSpace) IDs() []string {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	ids := make([]string, len(qs.order))
	copy(ids, qs.order)
	return ids
}

// Qubits returns the registered qubits in creation order.
func (qs *QuantumSpace) Qubits() []*Qubit {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	out := make([]*Qubit, 0, len(qs.order))
	for _, id := range qs.order {
		out = append(out, qs.qubits[id])
	}
	return out
}

// Len is the number of registered qubits.
func (qs *QuantumSpace) Len() int {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	return len(qs.qubits)
}

/*
allocate picks the device address for a new id. Dense addressing gives
every qubit its own byte. Character addressing reproduces the legacy wire
format, where ids sharing a first byte collide on the device.
Caller holds qs.mu.
*/
func (qs *QuantumSpace) allocate(id string) (byte, error) {
	if qs.config.CharAddressing {
		return legacyAddress(id), nil
	}

	if qs.next >= maxAddresses {
		return 0, ErrAddressSpaceExhausted
	}

	address := byte(qs.next)
	qs.next++
	return address, nil
}

func legacyAddress(id string) byte {
	return id[0]
}
