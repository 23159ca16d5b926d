package qrefresh

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

/*
fakeClock only moves when told to. Sleep advances it by the requested
duration and returns at once, and can cancel a context after a given
number of sleeps to interrupt multi-step operations.
*/
type fakeClock struct {
	mu          sync.Mutex
	now         time.Time
	sleeps      int
	cancelAfter int
	cancel      context.CancelFunc
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps++
	cancel := c.cancel != nil && c.sleeps == c.cancelAfter
	c.mu.Unlock()

	if cancel {
		c.cancel()
		return ctx.Err()
	}

	return nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func testConfig() *Config {
	config := NewConfig()
	config.ReadTimeout = 50 * time.Millisecond
	return config
}

// newTestController wires a controller to a fresh simulator on a fake clock.
func newTestController(t *testing.T, config *Config) (*Controller, *Simulator, *fakeClock) {
	t.Helper()

	sim := NewSimulator()
	clock := newFakeClock()

	controller, err := NewController(
		context.Background(),
		sim,
		config,
		WithClock(clock),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	t.Cleanup(func() {
		controller.Close()
	})

	return controller, sim, clock
}
