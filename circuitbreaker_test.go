package qrefresh

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCircuitBreakerInterface(t *testing.T) {
	Convey("Given a circuit breaker implementing Regulator interface", t, func() {
		breaker := NewCircuitBreaker(2, 100*time.Millisecond, 1, newFakeClock(), quietLogger())

		Convey("It should implement Regulator interface", func() {
			var _ Regulator = breaker

			breaker.Observe(NewMetrics())
			So(breaker.Limit(), ShouldBeFalse)
			So(breaker.State(), ShouldEqual, CircuitClosed)
		})
	})
}

func TestCircuitBreakerTransitions(t *testing.T) {
	Convey("Given a circuit breaker with failure threshold", t, func() {
		clock := newFakeClock()
		breaker := NewCircuitBreaker(2, 100*time.Millisecond, 1, clock, quietLogger())

		Convey("It should open after max failures", func() {
			breaker.RecordFailure()
			So(breaker.Allow(), ShouldBeTrue)

			breaker.RecordFailure()
			So(breaker.Allow(), ShouldBeFalse)
			So(breaker.State(), ShouldEqual, CircuitOpen)

			Convey("It should go half-open after the reset timeout", func() {
				clock.Advance(150 * time.Millisecond)

				So(breaker.Allow(), ShouldBeTrue)
				So(breaker.State(), ShouldEqual, CircuitHalfOpen)

				Convey("A success should close it", func() {
					breaker.RecordSuccess()
					So(breaker.State(), ShouldEqual, CircuitClosed)
				})

				Convey("A failure should open it again", func() {
					breaker.RecordFailure()
					So(breaker.State(), ShouldEqual, CircuitOpen)
					So(breaker.Limit(), ShouldBeTrue)
				})
			})

			Convey("Renormalize should also move it to half-open", func() {
				clock.Advance(150 * time.Millisecond)
				breaker.Renormalize()
				So(breaker.State(), ShouldEqual, CircuitHalfOpen)
			})
		})

		Convey("A success should reset the failure count", func() {
			breaker.RecordFailure()
			breaker.RecordSuccess()
			breaker.RecordFailure()

			So(breaker.State(), ShouldEqual, CircuitClosed)
		})
	})
}

func TestCircuitBreakerObserve(t *testing.T) {
	Convey("Given metrics with a streak of link failures", t, func() {
		breaker := NewCircuitBreaker(3, time.Second, 1, newFakeClock(), quietLogger())
		metrics := NewMetrics()

		for i := 0; i < 3; i++ {
			metrics.recordDeviceFailure(OpWeakMeasure)
		}

		Convey("Observing them should open the breaker", func() {
			breaker.Observe(metrics)
			So(breaker.State(), ShouldEqual, CircuitOpen)
			So(breaker.Limit(), ShouldBeTrue)
		})

		Convey("A completed transaction should clear the streak", func() {
			metrics.recordCompleted()
			breaker.Observe(metrics)
			So(breaker.State(), ShouldEqual, CircuitClosed)
		})
	})
}
