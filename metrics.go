package qrefresh

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

/*
Metrics keeps the controller's counters twice: as plain fields, which the
regulators observe and ExportMetrics reports, and as Prometheus collectors,
which become visible once Register has been called. All methods accept a
nil receiver so components can run without metrics.
*/
type Metrics struct {
	mu              sync.RWMutex
	Commands        map[Opcode]int64
	DeviceFailures  int64
	Corrections     map[Opcode]int64
	RefreshPasses   int64
	SkippedPasses   int64
	QubitRefreshes  int64
	LastPass        time.Time
	RefreshInterval time.Duration
	AverageFidelity float64
	BerryPhase      float64

	// consecutive device failures since the last success
	failureStreak int

	commandsTotal    *prometheus.CounterVec
	failuresTotal    *prometheus.CounterVec
	correctionsTotal *prometheus.CounterVec
	passesTotal      prometheus.Counter
	skippedTotal     prometheus.Counter
	refreshesTotal   prometheus.Counter
	intervalSeconds  prometheus.Gauge
	fidelityGauge    *prometheus.GaugeVec
	berryGauge       prometheus.Gauge
}

/*
NewMetrics creates the collectors without registering them anywhere; see
Register.
*/
func NewMetrics() *Metrics {
	return &Metrics{
		Commands:    make(map[Opcode]int64),
		Corrections: make(map[Opcode]int64),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrefresh", Name: "device_commands_total", Help: "Commands written to the device",
		}, []string{"op"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrefresh", Name: "device_failures_total", Help: "Device commands that failed or timed out",
		}, []string{"op"}),
		correctionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrefresh", Name: "corrections_total", Help: "Pauli corrections issued by error correction",
		}, []string{"op"}),
		passesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrefresh", Name: "refresh_passes_total", Help: "Refresh loop passes",
		}),
		skippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrefresh", Name: "refresh_passes_skipped_total", Help: "Refresh passes skipped by a regulator",
		}),
		refreshesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrefresh", Name: "qubit_refreshes_total", Help: "Per-qubit maintenance operations",
		}),
		intervalSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qrefresh", Name: "refresh_interval_seconds", Help: "Current adaptive refresh interval",
		}),
		fidelityGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "qrefresh", Name: "qubit_fidelity", Help: "Stored fidelity per qubit",
		}, []string{"qubit"}),
		berryGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qrefresh", Name: "berry_phase_radians", Help: "Accumulated geometric phase",
		}),
	}
}

// Register exposes the collectors on reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.commandsTotal,
		m.failuresTotal,
		m.correctionsTotal,
		m.passesTotal,
		m.skippedTotal,
		m.refreshesTotal,
		m.intervalSeconds,
		m.fidelityGauge,
		m.berryGauge,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) recordCommand(op Opcode) {
	if m == nil {
		return
	}

	m.mu.Lock()
	m.Commands[op]++
	m.mu.Unlock()

	m.commandsTotal.WithLabelValues(op.String()).Inc()
}

// recordCompleted ends a failure streak once a transaction succeeds.
func (m *Metrics) recordCompleted() {
	if m == nil {
		return
	}

	m.mu.Lock()
	m.failureStreak = 0
	m.mu.Unlock()
}

func (m *Metrics) recordDeviceFailure(op Opcode) {
	if m == nil {
		return
	}

	m.mu.Lock()
	m.DeviceFailures++
	m.failureStreak++
	m.mu.Unlock()

	m.failuresTotal.WithLabelValues(op.String()).Inc()
}

func (m *Metrics) recordCorrection(op Opcode) {
	if m == nil {
		return
	}

	m.mu.Lock()
	m.Corrections[op]++
	m.mu.Unlock()

	m.correctionsTotal.WithLabelValues(op.String()).Inc()
}

func (m *Metrics) recordPass(at time.Time, refreshed int, skipped bool) {
	if m == nil {
		return
	}

	m.mu.Lock()
	m.RefreshPasses++
	m.QubitRefreshes += int64(refreshed)
	m.LastPass = at
	if skipped {
		m.SkippedPasses++
	}
	m.mu.Unlock()

	m.passesTotal.Inc()
	m.refreshesTotal.Add(float64(refreshed))
	if skipped {
		m.skippedTotal.Inc()
	}
}

func (m *Metrics) recordInterval(d time.Duration) {
	if m == nil {
		return
	}

	m.mu.Lock()
	m.RefreshInterval = d
	m.mu.Unlock()

	m.intervalSeconds.Set(d.Seconds())
}

func (m *Metrics) recordFidelity(id string, fidelity float64) {
	if m == nil {
		return
	}
	m.fidelityGauge.WithLabelValues(id).Set(fidelity)
}

// ObserveStatus copies a status snapshot into the gauges.
func (m *Metrics) ObserveStatus(status Status) {
	if m == nil {
		return
	}

	m.mu.Lock()
	m.AverageFidelity = status.AverageFidelity
	m.BerryPhase = status.TotalBerryPhase
	m.mu.Unlock()

	m.berryGauge.Set(status.TotalBerryPhase)
	for id, q := range status.Qubits {
		m.fidelityGauge.WithLabelValues(id).Set(q.Fidelity)
	}
}

// FailureStreak is the number of device failures since the last success.
func (m *Metrics) FailureStreak() int {
	if m == nil {
		return 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failureStreak
}

// ExportMetrics flattens the counters for logging.
func (m *Metrics) ExportMetrics() map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var commands, corrections int64
	for _, n := range m.Commands {
		commands += n
	}
	for _, n := range m.Corrections {
		corrections += n
	}

	return map[string]interface{}{
		"commands":          commands,
		"device_failures":   m.DeviceFailures,
		"corrections":       corrections,
		"refresh_passes":    m.RefreshPasses,
		"skipped_passes":    m.SkippedPasses,
		"qubit_refreshes":   m.QubitRefreshes,
		"refresh_interval":  m.RefreshInterval.Seconds(),
		"average_fidelity":  m.AverageFidelity,
		"total_berry_phase": m.BerryPhase,
	}
}
