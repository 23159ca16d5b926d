package qrefresh

import (
	"sync"
	"time"
)

/*
Cadence is the single refresh interval shared by every qubit. Each qubit
the refresh loop maintains nudges it: a stable qubit (fidelity above the
stable threshold) stretches the interval, a degrading one shrinks it.
The last qubit processed therefore has the final say for a pass.
Adjustments are clamped to [min, max] when those bounds are positive.
*/
type Cadence struct {
	mu       sync.Mutex
	interval time.Duration
	min      time.Duration
	max      time.Duration
	stable   float64
	slowDown float64
	speedUp  float64
}

/*
NewCadence starts at the configured initial interval. The min and max
bounds are applied on every Adapt, not here.
*/
func NewCadence(config *Config) *Cadence {
	return &Cadence{
		interval: config.InitialRefreshInterval,
		min:      config.MinRefreshInterval,
		max:      config.MaxRefreshInterval,
		stable:   config.StableFidelity,
		slowDown: config.SlowDownFactor,
		speedUp:  config.SpeedUpFactor,
	}
}

// Interval is the current gap between refreshes of one qubit.
func (c *Cadence) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Rate is the refresh frequency in Hz.
func (c *Cadence) Rate() float64 {
	return 1 / c.Interval().Seconds()
}

// Adapt applies one qubit's fidelity to the interval and returns the result.
func (c *Cadence) Adapt(fidelity float64) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	factor := c.speedUp
	if fidelity > c.stable {
		factor = c.slowDown
	}

	next := time.Duration(float64(c.interval) * factor)

	if c.min > 0 && next < c.min {
		next = c.min
	}
	if c.max > 0 && next > c.max {
		next = c.max
	}

	c.interval = next
	return next
}
