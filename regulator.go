package qrefresh

/*
Regulator is a control element the refresh loop consults on every pass.
Like a thermostat, it reads the current metrics, decides whether the loop
should hold back, and steers itself back to normal operation over time.

The device CircuitBreaker is the regulator the controller installs by
default; callers can add their own with WithRegulator.
*/
type Regulator interface {
	// Observe hands the regulator the latest metrics before each pass.
	Observe(metrics *Metrics)

	// Limit reports whether the pass should skip device work.
	Limit() bool

	// Renormalize runs after each pass and lets the regulator relax
	// its restriction once conditions allow it.
	Renormalize()
}
