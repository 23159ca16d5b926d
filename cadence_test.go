package qrefresh

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCadence(t *testing.T) {
	Convey("Given the default cadence", t, func() {
		cadence := NewCadence(NewConfig())

		Convey("It should start at one millisecond", func() {
			So(cadence.Interval(), ShouldEqual, time.Millisecond)
			So(cadence.Rate(), ShouldAlmostEqual, 1000.0, 1e-9)
		})

		Convey("A stable qubit should stretch the interval", func() {
			next := cadence.Adapt(0.995)
			So(next.Seconds(), ShouldAlmostEqual, 0.0011, 1e-12)
		})

		Convey("Exactly the stable threshold should count as degrading", func() {
			next := cadence.Adapt(0.99)
			So(next.Seconds(), ShouldAlmostEqual, 0.0009, 1e-12)
		})

		Convey("The last qubit processed should have the final say", func() {
			cadence.Adapt(1.0)
			cadence.Adapt(1.0)
			last := cadence.Adapt(0.5)

			So(last.Seconds(), ShouldAlmostEqual, 0.001*1.1*1.1*0.9, 1e-9)
			So(cadence.Interval(), ShouldEqual, last)
		})

		Convey("Repeated degradation should stop at the minimum", func() {
			for i := 0; i < 200; i++ {
				cadence.Adapt(0.1)
			}
			So(cadence.Interval(), ShouldEqual, 10*time.Microsecond)
		})

		Convey("Repeated stability should stop at the maximum", func() {
			for i := 0; i < 200; i++ {
				cadence.Adapt(1.0)
			}
			So(cadence.Interval(), ShouldEqual, 10*time.Second)
		})
	})
}
