package qrefresh

import (
	"sync"
	"time"
)

/*
EntanglementLedger keeps the ordered history of entangle operations.

Entanglement here is a modelling shortcut, not a joint state: when qubit A
is entangled with B, B's error syndrome is copied onto A and nothing flows
the other way. The ledger records every such copy, so a later reader can
tell where a qubit's syndrome came from.
*/
type EntanglementLedger struct {
	mu      sync.RWMutex
	entries []EntanglementRecord
}

/*
EntanglementRecord is an immutable record of one entangle operation.
Copied is false when one of the qubits was unknown and only the device
command was sent.
*/
type EntanglementRecord struct {
	Sequence  uint64
	Timestamp time.Time
	Qubit     string
	Partner   string
	Syndrome  Syndrome
	Copied    bool
}

// NewEntanglementLedger returns an empty ledger.
func NewEntanglementLedger() *EntanglementLedger {
	return &EntanglementLedger{
		entries: make([]EntanglementRecord, 0),
	}
}

func (el *EntanglementLedger) record(at time.Time, qubit, partner string, syndrome Syndrome, copied bool) EntanglementRecord {
	el.mu.Lock()
	defer el.mu.Unlock()

	entry := EntanglementRecord{
		Sequence:  uint64(len(el.entries)),
		Timestamp: at,
		Qubit:     qubit,
		Partner:   partner,
		Syndrome:  syndrome,
		Copied:    copied,
	}
	el.entries = append(el.entries, entry)

	return entry
}

// History returns the records with a sequence number of at least since.
func (el *EntanglementLedger) History(since uint64) []EntanglementRecord {
	el.mu.RLock()
	defer el.mu.RUnlock()

	if since >= uint64(len(el.entries)) {
		return []EntanglementRecord{}
	}

	out := make([]EntanglementRecord, len(el.entries)-int(since))
	copy(out, el.entries[since:])
	return out
}

// Partners lists every qubit whose syndrome has been copied onto id.
func (el *EntanglementLedger) Partners(id string) []string {
	el.mu.RLock()
	defer el.mu.RUnlock()

	seen := make(map[string]bool)
	partners := make([]string, 0)

	for _, entry := range el.entries {
		if entry.Qubit == id && entry.Copied && !seen[entry.Partner] {
			seen[entry.Partner] = true
			partners = append(partners, entry.Partner)
		}
	}

	return partners
}
