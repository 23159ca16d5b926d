package qrefresh

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/errnie"
)

/*
Controller is the shared context every component works through. It owns
the QuantumSpace, the device Link, the adaptive Cadence and the Berry
phase accumulator, and runs the background refresh loop. Foreground calls
(gates, circuits, status) may be issued from any goroutine while the loop
runs.
*/
type Controller struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// lifecycle guards the fields below, which belong to the current loop.
	lifecycle sync.Mutex
	stopRun   context.CancelFunc
	runDone   chan struct{}
	stopped   bool

	config     *Config
	space      *QuantumSpace
	link       *Link
	cadence    *Cadence
	breaker    *CircuitBreaker
	regulators []Regulator
	ledger     *EntanglementLedger
	metrics    *Metrics
	clock      Clock
	logger     *log.Logger

	mu         sync.Mutex
	berryPhase float64
}

// Option configures a Controller at construction.
type Option func(*Controller)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

/*
WithLogger sets the logger shared by the controller, the space and the
device link. Each component tags its lines with its own name.
*/
func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithMetrics shares an existing collector set instead of creating one.
func WithMetrics(metrics *Metrics) Option {
	return func(c *Controller) {
		c.metrics = metrics
	}
}

// WithRegulator adds a regulator next to the device circuit breaker.
func WithRegulator(regulator Regulator) Option {
	return func(c *Controller) {
		c.regulators = append(c.regulators, regulator)
	}
}

/*
NewController wires a controller to the device reachable through ch. The
refresh loop is not running yet; call Start. A nil config means NewConfig,
and any other config has to pass Validate.
*/
func NewController(ctx context.Context, ch Channel, config *Config, opts ...Option) (*Controller, error) {
	if config == nil {
		config = NewConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	c := &Controller{
		ctx:        ctx,
		cancel:     cancel,
		config:     config,
		regulators: make([]Regulator, 0),
		ledger:     NewEntanglementLedger(),
		clock:      SystemClock(),
		logger:     log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.metrics == nil {
		c.metrics = NewMetrics()
	}

	errnie.Info(
		"NewController - readTimeout %v, tick %v, errorThreshold %v",
		config.ReadTimeout,
		config.Tick,
		config.ErrorThreshold,
	)

	c.space = NewQuantumSpace(config, c.logger)
	c.link = NewLink(ch, config.ReadTimeout, c.metrics, c.logger)
	c.cadence = NewCadence(config)
	c.breaker = NewCircuitBreaker(
		config.BreakerMaxFailures,
		config.BreakerResetTimeout,
		config.BreakerHalfOpenMax,
		c.clock,
		c.logger,
	)
	c.regulators = append([]Regulator{c.breaker}, c.regulators...)

	if config.PassRefill > 0 {
		c.regulators = append(c.regulators, NewRateLimiter(config.PassBurst, config.PassRefill, c.clock))
	}
	c.logger = c.logger.With("component", "controller")

	c.metrics.recordInterval(c.cadence.Interval())

	return c, nil
}

/*
Bootstrap creates the qubits listed in the config. Topological entries go
through CreateTopologicalQubit and therefore talk to the device.
*/
func (c *Controller) Bootstrap(ctx context.Context) error {
	for _, q := range c.config.Qubits {
		var err error

		if q.Topological {
			_, err = c.CreateTopologicalQubit(ctx, q.ID)
		} else {
			_, err = c.CreateQubit(q.ID, complex(q.Alpha, 0), complex(q.Beta, 0))
		}

		if err != nil {
			return fmt.Errorf("bootstrapping %q: %w", q.ID, err)
		}
	}

	c.logger.Info("qubits ready", "count", c.space.Len())
	return nil
}

/*
Start launches the refresh loop. Calling it on a running loop is a no-op.
After a Stop it first waits for the previous loop to exit, so at most one
loop is ever running.
*/
func (c *Controller) Start() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.runDone != nil {
		if !c.stopped && !closed(c.runDone) {
			return
		}
		<-c.runDone
	}

	if c.ctx.Err() != nil {
		return
	}

	runCtx, stop := context.WithCancel(c.ctx)
	done := make(chan struct{})

	c.stopRun = stop
	c.runDone = done
	c.stopped = false

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		defer stop()
		c.refreshLoop(runCtx)
	}()
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

/*
Stop asks the refresh loop to exit. A loop waiting out its tick returns
at once; a pass in progress finishes its current command first.
*/
func (c *Controller) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.stopped = true

	if c.stopRun != nil {
		c.stopRun()
	}
}

// Running reports whether a refresh loop is alive and has not been stopped.
func (c *Controller) Running() bool {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	return c.runDone != nil && !c.stopped && !closed(c.runDone)
}

// Close stops the loop, waits for it and closes the device link.
func (c *Controller) Close() error {
	if c == nil {
		return nil
	}

	c.logger.Info("closing controller")

	c.Stop()
	c.cancel()
	c.wg.Wait()

	return c.link.Close()
}

// Space is the registry of qubits the controller maintains.
func (c *Controller) Space() *QuantumSpace {
	return c.space
}

// Cadence is the adaptive refresh interval shared by every qubit.
func (c *Controller) Cadence() *Cadence {
	return c.cadence
}

/*
Breaker guards the device. While it is open the refresh loop skips whole
passes instead of hammering a dead link.
*/
func (c *Controller) Breaker() *CircuitBreaker {
	return c.breaker
}

// Ledger holds the recent entangle operations.
func (c *Controller) Ledger() *EntanglementLedger {
	return c.ledger
}

// Metrics exposes the Prometheus collectors.
func (c *Controller) Metrics() *Metrics {
	return c.metrics
}

// BerryPhase is the sum of every completed geometric phase gate angle.
func (c *Controller) BerryPhase() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.berryPhase
}

func (c *Controller) addBerryPhase(angle float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.berryPhase += angle
}

func (c *Controller) lookup(id string) (*Qubit, error) {
	q, ok := c.space.Get(id)
	if !ok {
		return nil, &UnknownQubitError{ID: id}
	}
	return q, nil
}

// tolerate swallows unknown-qubit errors when the legacy switch asks for it.
func (c *Controller) tolerate(err error) error {
	if c.config.IgnoreUnknownQubits && errors.Is(err, ErrUnknownQubit) {
		c.logger.Debug("ignoring unknown qubit", "err", err)
		return nil
	}
	return err
}

/*
wireAddress resolves the device address for commands that do not need
the qubit record. Under legacy character addressing with unknown qubits
ignored, an unregistered id still goes out on its first byte. The bool is
false when nothing should be sent.
*/
func (c *Controller) wireAddress(id string) (byte, bool, error) {
	if q, ok := c.space.Get(id); ok {
		return q.Address, true, nil
	}

	if c.config.IgnoreUnknownQubits && c.config.CharAddressing && id != "" {
		return legacyAddress(id), true, nil
	}

	return 0, false, c.tolerate(&UnknownQubitError{ID: id})
}

// CreateQubit registers an ordinary qubit with the base coherence time.
func (c *Controller) CreateQubit(id string, alpha, beta complex128) (*Qubit, error) {
	return c.space.Create(id, alpha, beta, c.config.BaseCoherence, c.clock.Now())
}

// ResetQubit re-initialises an existing ordinary qubit.
func (c *Controller) ResetQubit(id string, alpha, beta complex128) error {
	return c.space.Reset(id, alpha, beta, c.config.BaseCoherence, c.clock.Now())
}

/*
CreateTopologicalQubit registers a qubit in the (|0⟩+|1⟩)/√2 ground state
with the long topological coherence baseline, then switches the device
into topological mode for it.
*/
func (c *Controller) CreateTopologicalQubit(ctx context.Context, id string) (*Qubit, error) {
	amplitude := complex(1/math.Sqrt2, 0)

	q, err := c.space.Create(id, amplitude, amplitude, c.config.TopologicalCoherence, c.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := c.link.Send(ctx, AddressFrame(OpTopologicalOn, q.Address)); err != nil {
		return q, fmt.Errorf("enabling topological mode for %q: %w", id, err)
	}

	return q, nil
}
