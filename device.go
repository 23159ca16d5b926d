package qrefresh

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Opcode is the first byte of every device command frame.
type Opcode byte

const (
	OpWeakMeasure    Opcode = 0x01
	OpSyndrome       Opcode = 0x02
	OpPhaseStep      Opcode = 0x03
	OpPauliX         Opcode = 0x04
	OpPauliY         Opcode = 0x05
	OpPauliZ         Opcode = 0x06
	OpTopologicalOn  Opcode = 0x10
	OpEntangle       Opcode = 0x20
	OpClassicMeasure Opcode = 0x30
)

func (op Opcode) String() string {
	switch op {
	case OpWeakMeasure:
		return "weak_measure"
	case OpSyndrome:
		return "syndrome"
	case OpPhaseStep:
		return "phase_step"
	case OpPauliX:
		return "pauli_x"
	case OpPauliY:
		return "pauli_y"
	case OpPauliZ:
		return "pauli_z"
	case OpTopologicalOn:
		return "topological_on"
	case OpEntangle:
		return "entangle"
	case OpClassicMeasure:
		return "measure"
	default:
		return fmt.Sprintf("opcode_0x%02x", byte(op))
	}
}

// FrameLength is the full command length for op, opcode byte included.
func (op Opcode) FrameLength() int {
	switch op {
	case OpPhaseStep:
		return 6
	case OpEntangle:
		return 3
	default:
		return 2
	}
}

// ResponseLength is the number of bytes the device answers op with.
func (op Opcode) ResponseLength() int {
	switch op {
	case OpWeakMeasure:
		return 4
	case OpSyndrome, OpClassicMeasure:
		return 1
	default:
		return 0
	}
}

// AddressFrame builds the two-byte frame shared by most commands.
func AddressFrame(op Opcode, address byte) []byte {
	return []byte{byte(op), address}
}

// PhaseStepFrame appends the step angle as a little-endian float32.
func PhaseStepFrame(address byte, angle float64) []byte {
	frame := make([]byte, 2, OpPhaseStep.FrameLength())
	frame[0] = byte(OpPhaseStep)
	frame[1] = address
	return binary.LittleEndian.AppendUint32(frame, math.Float32bits(float32(angle)))
}

// EntangleFrame addresses two qubits; the device answers nothing.
func EntangleFrame(first, second byte) []byte {
	return []byte{byte(OpEntangle), first, second}
}

/*
Channel is the opaque byte transport to the device. Close has to unblock a
pending Read, which is how the Link's reader exits.
*/
type Channel interface {
	io.ReadWriteCloser
}

/*
Link turns a Channel into a command/response transport. Each Transact is
atomic: no other caller can write between a command and the read of its
response. A background reader drains the channel so that every read can be
bounded by a deadline. Bytes left over from earlier commands are discarded
before the next command goes out, and after an abandoned transaction the
link stays quiet for one more timeout to swallow a late answer. A reply
later than that is still read as the answer to whatever comes next; the
wire protocol carries no sequence number to tell them apart.
*/
type Link struct {
	mu      sync.Mutex
	ch      Channel
	timeout time.Duration
	inbox   chan []byte
	failed  chan error
	done    chan struct{}
	pending []byte
	err     error
	closed  bool
	// abandoned is set when a response was given up on before it arrived.
	abandoned bool
	metrics *Metrics
	logger  *log.Logger
	once    sync.Once
}

// NewLink starts the background reader on ch.
func NewLink(ch Channel, timeout time.Duration, metrics *Metrics, logger *log.Logger) *Link {
	l := &Link{
		ch:      ch,
		timeout: timeout,
		inbox:   make(chan []byte, 64),
		failed:  make(chan error, 1),
		done:    make(chan struct{}),
		metrics: metrics,
		logger:  logger.With("component", "link"),
	}

	go l.read()

	return l
}

func (l *Link) read() {
	buf := make([]byte, 256)

	for {
		n, err := l.ch.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			select {
			case l.inbox <- chunk:
			case <-l.done:
				return
			}
		}

		if err != nil {
			l.failed <- err
			return
		}

		select {
		case <-l.done:
			return
		default:
		}
	}
}

// Send writes a command that has no response.
func (l *Link) Send(ctx context.Context, frame []byte) error {
	_, err := l.Transact(ctx, frame, 0)
	return err
}

/*
Transact writes frame and waits for exactly n response bytes. It gives up
after the link timeout, returning a ChannelError wrapping ErrTimeout when
nothing arrived and a MalformedResponse when the answer was cut short.
*/
func (l *Link) Transact(ctx context.Context, frame []byte, n int) ([]byte, error) {
	op := Opcode(frame[0])

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, &ChannelError{Op: op.String(), Cause: ErrLinkClosed}
	}

	if l.err != nil {
		return nil, &ChannelError{Op: op.String(), Cause: l.err}
	}

	l.drain()

	if l.abandoned {
		if err := l.settle(ctx); err != nil {
			return nil, &ChannelError{Op: op.String(), Cause: err}
		}
	}

	if _, err := l.ch.Write(frame); err != nil {
		l.metrics.recordDeviceFailure(op)
		return nil, &ChannelError{Op: op.String(), Cause: err}
	}

	l.metrics.recordCommand(op)

	if n == 0 {
		l.metrics.recordCompleted()
		return nil, nil
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	for len(l.pending) < n {
		select {
		case chunk := <-l.inbox:
			l.pending = append(l.pending, chunk...)
		case err := <-l.failed:
			l.err = err
			l.metrics.recordDeviceFailure(op)
			return nil, &ChannelError{Op: op.String(), Cause: err}
		case <-ctx.Done():
			l.metrics.recordDeviceFailure(op)
			l.abandoned = true
			return nil, &ChannelError{Op: op.String(), Cause: ctx.Err()}
		case <-timer.C:
			l.metrics.recordDeviceFailure(op)
			l.abandoned = true
			got := len(l.pending)
			l.pending = l.pending[:0]

			if got == 0 {
				l.logger.Warn("device did not answer", "op", op, "timeout", l.timeout)
				return nil, &ChannelError{Op: op.String(), Cause: ErrTimeout}
			}

			return nil, &MalformedResponse{Opcode: op, Expected: n, Got: got}
		}
	}

	response := make([]byte, n)
	copy(response, l.pending[:n])
	l.pending = l.pending[n:]
	l.metrics.recordCompleted()

	return response, nil
}

// drain discards anything left over from earlier, abandoned responses.
func (l *Link) drain() {
	stale := len(l.pending)
	l.pending = l.pending[:0]

	for {
		select {
		case chunk := <-l.inbox:
			stale += len(chunk)
		default:
			if stale > 0 {
				l.logger.Debug("discarded stale device bytes", "bytes", stale)
			}
			return
		}
	}
}

/*
settle waits out one timeout after an abandoned transaction, dropping
whatever the device still sends for it.
*/
func (l *Link) settle(ctx context.Context) error {
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	late := 0

	for {
		select {
		case chunk := <-l.inbox:
			late += len(chunk)
		case <-timer.C:
			l.abandoned = false
			if late > 0 {
				l.logger.Debug("discarded late device bytes", "bytes", late)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrLinkClosed
		}
	}
}

// Close stops the reader and closes the channel.
func (l *Link) Close() error {
	var err error

	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		close(l.done)
		err = l.ch.Close()
	})

	return err
}
