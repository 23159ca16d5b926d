package qrefresh

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestZenoMeasure(t *testing.T) {
	Convey("Given a controller with one qubit", t, func() {
		controller, sim, _ := newTestController(t, testConfig())
		ctx := context.Background()

		q, err := controller.CreateQubit("q0", 1, 0)
		So(err, ShouldBeNil)

		Convey("A weak reading should stretch the coherence time", func() {
			sim.Strength = func(byte) float32 { return 0.05 }

			So(controller.ZenoMeasure(ctx, "q0"), ShouldBeNil)
			So(q.State().CoherenceTime, ShouldAlmostEqual, 1.001, 1e-12)
		})

		Convey("A strong reading should leave the state alone", func() {
			sim.Strength = func(byte) float32 { return 0.5 }

			So(controller.ZenoMeasure(ctx, "q0"), ShouldBeNil)
			So(q.State().CoherenceTime, ShouldEqual, 1.0)
		})

		Convey("A silent device should surface a timeout", func() {
			sim.Mute[OpWeakMeasure] = true

			err := controller.ZenoMeasure(ctx, "q0")
			So(errors.Is(err, ErrTimeout), ShouldBeTrue)
			So(q.State().CoherenceTime, ShouldEqual, 1.0)
		})
	})
}

func TestApplyErrorCorrection(t *testing.T) {
	Convey("Given a qubit on a device reporting errors", t, func() {
		controller, sim, clock := newTestController(t, testConfig())
		ctx := context.Background()

		q, err := controller.CreateQubit("q0", 1, 0)
		So(err, ShouldBeNil)

		Convey("Set syndrome bits should trigger their Pauli gates in order", func() {
			sim.Syndrome = func(byte) byte { return 0b110 }

			So(controller.ApplyErrorCorrection(ctx, "q0"), ShouldBeNil)

			So(sim.Frames(), ShouldResemble, [][]byte{
				{byte(OpSyndrome), 0},
				{byte(OpPauliY), 0},
				{byte(OpPauliZ), 0},
			})
			So(controller.Metrics().Corrections[OpPauliX], ShouldEqual, 0)
			So(controller.Metrics().Corrections[OpPauliY], ShouldEqual, 1)
			So(controller.Metrics().Corrections[OpPauliZ], ShouldEqual, 1)
		})

		Convey("Fidelity should be recomputed from the stored state", func() {
			clock.Advance(500 * time.Millisecond)

			So(controller.ApplyErrorCorrection(ctx, "q0"), ShouldBeNil)
			So(q.State().Fidelity, ShouldAlmostEqual, math.Exp(-0.5), 1e-9)
		})

		Convey("A clear syndrome should change nothing twice over", func() {
			q.mu.Lock()
			q.state.Syndrome = Syndrome{0, 1, 0}
			q.mu.Unlock()

			So(controller.ApplyErrorCorrection(ctx, "q0"), ShouldBeNil)
			first := q.State()

			So(controller.ApplyErrorCorrection(ctx, "q0"), ShouldBeNil)
			second := q.State()

			So(sim.Count(OpPauliX)+sim.Count(OpPauliY)+sim.Count(OpPauliZ), ShouldEqual, 0)
			So(first.Syndrome, ShouldResemble, Syndrome{0, 1, 0})
			So(second.Syndrome, ShouldResemble, first.Syndrome)
			So(second.Fidelity, ShouldEqual, first.Fidelity)
		})
	})
}

func TestGeometricPhaseGate(t *testing.T) {
	Convey("Given a qubit and a virtual clock", t, func() {
		controller, sim, clock := newTestController(t, testConfig())

		q, err := controller.CreateQubit("q0", 1, 0)
		So(err, ShouldBeNil)

		Convey("The gate should go out in 100 steps", func() {
			So(controller.GeometricPhaseGate(context.Background(), "q0", math.Pi), ShouldBeNil)

			frames := sim.Frames()
			So(len(frames), ShouldEqual, 100)
			So(clock.Sleeps(), ShouldEqual, 100)

			for i, frame := range frames {
				angle := math.Float32frombits(binary.LittleEndian.Uint32(frame[2:]))
				So(angle, ShouldEqual, float32(math.Pi*float64(i)/100))
			}
		})

		Convey("Phase and Berry phase should grow by exactly the angle", func() {
			before := q.State().Phase

			So(controller.GeometricPhaseGate(context.Background(), "q0", math.Pi/2), ShouldBeNil)
			So(controller.GeometricPhaseGate(context.Background(), "q0", math.Pi/4), ShouldBeNil)

			So(q.State().Phase-before, ShouldEqual, math.Pi/2+math.Pi/4)
			So(controller.BerryPhase(), ShouldEqual, math.Pi/2+math.Pi/4)
		})

		Convey("A gate cancelled between steps should not accumulate", func() {
			ctx, cancel := context.WithCancel(context.Background())
			clock.cancel = cancel
			clock.cancelAfter = 10

			err := controller.GeometricPhaseGate(ctx, "q0", math.Pi)

			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(sim.Count(OpPhaseStep), ShouldEqual, 10)
			So(q.State().Phase, ShouldEqual, 0.0)
			So(controller.BerryPhase(), ShouldEqual, 0.0)
		})
	})
}

func TestEntangle(t *testing.T) {
	Convey("Given two qubits where q1 carries errors", t, func() {
		controller, sim, _ := newTestController(t, testConfig())
		ctx := context.Background()

		q0, _ := controller.CreateQubit("q0", 1, 0)
		q1, _ := controller.CreateQubit("q1", 1, 0)

		q1.mu.Lock()
		q1.state.Syndrome = Syndrome{1, 0, 1}
		q1.mu.Unlock()

		Convey("When q0 is entangled with q1", func() {
			So(controller.Entangle(ctx, "q0", "q1"), ShouldBeNil)

			Convey("q0 should carry q1's syndrome and q1 should be unchanged", func() {
				So(q0.State().Syndrome, ShouldResemble, Syndrome{1, 0, 1})
				So(q1.State().Syndrome, ShouldResemble, Syndrome{1, 0, 1})
			})

			Convey("The device should see both addresses", func() {
				So(sim.Frames(), ShouldResemble, [][]byte{{byte(OpEntangle), 0, 1}})
			})

			Convey("The ledger should record the copy", func() {
				history := controller.Ledger().History(0)
				So(len(history), ShouldEqual, 1)
				So(history[0].Qubit, ShouldEqual, "q0")
				So(history[0].Partner, ShouldEqual, "q1")
				So(history[0].Copied, ShouldBeTrue)
				So(controller.Ledger().Partners("q0"), ShouldResemble, []string{"q1"})
			})
		})

		Convey("Entangling the other way should not touch q0", func() {
			So(controller.Entangle(ctx, "q1", "q0"), ShouldBeNil)
			So(q1.State().Syndrome, ShouldResemble, Syndrome{0, 0, 0})
			So(q0.State().Syndrome, ShouldResemble, Syndrome{0, 0, 0})
		})

		Convey("Entangling a qubit with itself should keep its syndrome", func() {
			So(controller.Entangle(ctx, "q1", "q1"), ShouldBeNil)
			So(q1.State().Syndrome, ShouldResemble, Syndrome{1, 0, 1})
		})
	})
}

func TestMeasureAndTopological(t *testing.T) {
	Convey("Given a controller", t, func() {
		controller, sim, _ := newTestController(t, testConfig())
		ctx := context.Background()

		Convey("Measure should return the device outcome", func() {
			sim.Outcome = func(byte) byte { return 1 }
			_, _ = controller.CreateQubit("q0", 1, 0)

			outcome, err := controller.Measure(ctx, "q0")
			So(err, ShouldBeNil)
			So(outcome, ShouldEqual, byte(1))
		})

		Convey("MeasureSyndrome should decode without storing", func() {
			sim.Syndrome = func(byte) byte { return 0b011 }
			q, _ := controller.CreateQubit("q0", 1, 0)

			syndrome, err := controller.MeasureSyndrome(ctx, "q0")
			So(err, ShouldBeNil)
			So(syndrome, ShouldResemble, Syndrome{1, 1, 0})
			So(q.State().Syndrome.Clear(), ShouldBeTrue)
		})

		Convey("Topological qubits should start balanced and protected", func() {
			q, err := controller.CreateTopologicalQubit(ctx, "t0")
			So(err, ShouldBeNil)

			state := q.State()
			So(state.CoherenceTime, ShouldEqual, 3600.0)
			So(real(state.Alpha), ShouldAlmostEqual, 1/math.Sqrt2, 1e-12)
			So(real(state.Beta), ShouldAlmostEqual, 1/math.Sqrt2, 1e-12)
			So(sim.Frames(), ShouldResemble, [][]byte{{byte(OpTopologicalOn), q.Address}})
		})
	})
}

func TestUnknownQubits(t *testing.T) {
	Convey("Given the default strict policy", t, func() {
		controller, sim, _ := newTestController(t, testConfig())
		ctx := context.Background()

		Convey("Every operation should report the unknown id", func() {
			So(errors.Is(controller.ZenoMeasure(ctx, "nope"), ErrUnknownQubit), ShouldBeTrue)
			So(errors.Is(controller.PauliX(ctx, "nope"), ErrUnknownQubit), ShouldBeTrue)
			So(errors.Is(controller.ApplyErrorCorrection(ctx, "nope"), ErrUnknownQubit), ShouldBeTrue)
			So(errors.Is(controller.GeometricPhaseGate(ctx, "nope", 1), ErrUnknownQubit), ShouldBeTrue)
			So(errors.Is(controller.Entangle(ctx, "nope", "nada"), ErrUnknownQubit), ShouldBeTrue)

			_, err := controller.Measure(ctx, "nope")

			var unknown *UnknownQubitError
			So(errors.As(err, &unknown), ShouldBeTrue)
			So(unknown.ID, ShouldEqual, "nope")
			So(len(sim.Frames()), ShouldEqual, 0)
		})
	})

	Convey("Given unknown qubits are ignored", t, func() {
		config := testConfig()
		config.IgnoreUnknownQubits = true

		Convey("With dense addressing nothing should reach the device", func() {
			controller, sim, _ := newTestController(t, config)
			ctx := context.Background()

			So(controller.ZenoMeasure(ctx, "zeta"), ShouldBeNil)
			So(controller.PauliX(ctx, "zeta"), ShouldBeNil)
			So(controller.GeometricPhaseGate(ctx, "zeta", 1), ShouldBeNil)
			So(controller.BerryPhase(), ShouldEqual, 0.0)
			So(len(sim.Frames()), ShouldEqual, 0)
		})

		Convey("With character addressing stateless commands still go out", func() {
			config.CharAddressing = true
			controller, sim, _ := newTestController(t, config)
			ctx := context.Background()

			So(controller.ApplyErrorCorrection(ctx, "zeta"), ShouldBeNil)
			So(controller.PauliX(ctx, "zeta"), ShouldBeNil)
			So(controller.Entangle(ctx, "zeta", "eta"), ShouldBeNil)

			So(sim.Frames(), ShouldResemble, [][]byte{
				{byte(OpPauliX), 'z'},
				{byte(OpEntangle), 'z', 'e'},
			})

			history := controller.Ledger().History(0)
			So(len(history), ShouldEqual, 1)
			So(history[0].Copied, ShouldBeFalse)
		})
	})
}
