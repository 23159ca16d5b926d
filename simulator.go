package qrefresh

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
)

/*
Simulator is an in-memory device that speaks the command protocol. It is
what `qrefresh --simulate` talks to, and what the package tests use in
place of hardware. The response hooks are read under the simulator lock,
set them before handing the simulator to a Link.
*/
type Simulator struct {
	mu     sync.Mutex
	cond   *sync.Cond
	in     []byte
	out    []byte
	frames [][]byte
	closed bool

	// Strength answers weak measurements. Defaults to 0.05.
	Strength func(address byte) float32
	// Syndrome answers syndrome reads. Defaults to a clear syndrome.
	Syndrome func(address byte) byte
	// Outcome answers classical measurements. Defaults to 0.
	Outcome func(address byte) byte

	// Mute drops the response to an opcode entirely.
	Mute map[Opcode]bool
	// Short truncates the response to an opcode to the given length.
	Short map[Opcode]int
	// Silent drops every response for an address.
	Silent map[byte]bool
}

// NewSimulator returns a device that answers every command with the defaults.
func NewSimulator() *Simulator {
	s := &Simulator{
		Mute:   make(map[Opcode]bool),
		Short:  make(map[Opcode]int),
		Silent: make(map[byte]bool),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Write accepts any number of whole or partial frames.
func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, io.ErrClosedPipe
	}

	s.in = append(s.in, p...)

	for len(s.in) > 0 {
		op := Opcode(s.in[0])
		size := op.FrameLength()
		if len(s.in) < size {
			break
		}

		frame := make([]byte, size)
		copy(frame, s.in[:size])
		s.in = s.in[size:]

		s.frames = append(s.frames, frame)
		s.respond(op, frame)
	}

	return len(p), nil
}

func (s *Simulator) respond(op Opcode, frame []byte) {
	address := frame[1]

	if s.Mute[op] || s.Silent[address] {
		return
	}
	var response []byte

	switch op {
	case OpWeakMeasure:
		strength := float32(0.05)
		if s.Strength != nil {
			strength = s.Strength(address)
		}
		response = binary.LittleEndian.AppendUint32(nil, math.Float32bits(strength))
	case OpSyndrome:
		var syndrome byte
		if s.Syndrome != nil {
			syndrome = s.Syndrome(address)
		}
		response = []byte{syndrome}
	case OpClassicMeasure:
		var outcome byte
		if s.Outcome != nil {
			outcome = s.Outcome(address)
		}
		response = []byte{outcome}
	default:
		return
	}

	if n, ok := s.Short[op]; ok && n < len(response) {
		response = response[:n]
	}

	s.out = append(s.out, response...)
	s.cond.Broadcast()
}

// Read blocks until a response is available or the simulator is closed.
func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.out) == 0 && !s.closed {
		s.cond.Wait()
	}

	if len(s.out) == 0 {
		return 0, io.EOF
	}

	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// Close wakes any blocked Read, which then returns io.EOF.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.cond.Broadcast()
	return nil
}

// Frames returns a copy of every complete frame received so far.
func (s *Simulator) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]byte, len(s.frames))
	for i, f := range s.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Count reports how many frames with opcode op were received.
func (s *Simulator) Count(op Opcode) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, f := range s.frames {
		if Opcode(f[0]) == op {
			n++
		}
	}
	return n
}
