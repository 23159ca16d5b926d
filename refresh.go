package qrefresh

import (
	"context"
	"time"
)

/*
refreshLoop runs passes until run ends, pausing one tick between passes.
run is cancelled by Stop and by the controller's own context. Passes use
the controller context, so Stop never cuts a device command short.
*/
func (c *Controller) refreshLoop(run context.Context) {
	c.logger.Info("refresh loop started", "tick", c.config.Tick, "interval", c.cadence.Interval())

	for run.Err() == nil {
		c.RefreshPass(c.ctx)

		if err := c.clock.Sleep(run, c.config.Tick); err != nil {
			break
		}
	}

	if c.ctx.Err() != nil {
		c.logger.Info("refresh loop cancelled")
		return
	}

	c.logger.Info("refresh loop stopped")
}

/*
RefreshPass performs one maintenance pass over every qubit and returns the
number of qubits it refreshed. A regulator that limits (the device breaker
while open) turns the pass into a no-op. A device failure on one qubit is
logged and counted against the breaker; the remaining qubits are still
visited.
*/
func (c *Controller) RefreshPass(ctx context.Context) int {
	now := c.clock.Now()

	for _, regulator := range c.regulators {
		regulator.Observe(c.metrics)
	}

	limited := false
	for _, regulator := range c.regulators {
		if regulator.Limit() {
			limited = true
			break
		}
	}

	refreshed := 0

	if !limited {
		for _, q := range c.space.Qubits() {
			if ctx.Err() != nil {
				break
			}

			done, err := c.refreshQubit(ctx, q, now)
			if err != nil {
				c.logger.Warn("refresh failed", "qubit", q.ID, "err", err)
				c.breaker.RecordFailure()

				if !c.breaker.Allow() {
					break
				}
				continue
			}

			if done {
				refreshed++
				c.breaker.RecordSuccess()
			}
		}
	}

	for _, regulator := range c.regulators {
		regulator.Renormalize()
	}

	c.metrics.recordPass(now, refreshed, limited)

	return refreshed
}

// refreshQubit maintains q when its refresh is due and reports whether it was.
func (c *Controller) refreshQubit(ctx context.Context, q *Qubit, now time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if now.Sub(q.state.LastRefresh) <= c.cadence.Interval() {
		return false, nil
	}

	if err := c.zeno(ctx, q); err != nil {
		return false, err
	}

	if c.config.TrackDecay {
		q.state.Fidelity = Fidelity(q.state, now)
	}

	if q.state.Fidelity < c.config.ErrorThreshold {
		if err := c.correct(ctx, q); err != nil {
			return false, err
		}
	}

	q.state.LastRefresh = now

	interval := c.cadence.Adapt(q.state.Fidelity)
	c.metrics.recordInterval(interval)
	c.metrics.recordFidelity(q.ID, q.state.Fidelity)

	return true, nil
}
