package qrefresh

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

func TestStatus(t *testing.T) {
	Convey("Given a controller without qubits", t, func() {
		controller, _, _ := newTestController(t, testConfig())

		Convey("The average fidelity should be zero", func() {
			status := controller.Status()

			So(len(status.Qubits), ShouldEqual, 0)
			So(status.AverageFidelity, ShouldEqual, 0.0)
			So(status.RefreshRate, ShouldAlmostEqual, 1000.0, 1e-9)
		})
	})

	Convey("Given a freshly created qubit", t, func() {
		controller, _, _ := newTestController(t, testConfig())
		_, err := controller.CreateQubit("q0", 1, 0)
		So(err, ShouldBeNil)

		status := controller.Status()

		Convey("It should report full fidelity and no errors", func() {
			So(status.Qubits["q0"], ShouldResemble, QubitStatus{
				Fidelity:      1.0,
				CoherenceTime: 1.0,
				Errors:        0,
			})
			So(status.AverageFidelity, ShouldEqual, 1.0)
			So(status.TotalBerryPhase, ShouldEqual, 0.0)
		})

		Convey("Errors and the mean should follow the stored state", func() {
			q1, _ := controller.CreateQubit("q1", 1, 0)
			q1.mu.Lock()
			q1.state.Fidelity = 0.5
			q1.state.Syndrome = Syndrome{1, 1, 0}
			q1.mu.Unlock()

			status := controller.Status()
			So(status.Qubits["q1"].Errors, ShouldEqual, 2)
			So(status.AverageFidelity, ShouldAlmostEqual, 0.75, 1e-12)
		})
	})
}

func TestEncodeStatus(t *testing.T) {
	Convey("Given a status", t, func() {
		status := Status{
			Qubits: map[string]QubitStatus{
				"q0": {Fidelity: 0.98, CoherenceTime: 1.2, Errors: 1},
			},
			AverageFidelity: 0.98,
			TotalBerryPhase: math.Pi,
			RefreshRate:     909.09,
		}

		Convey("JSON should use the snake_case field names", func() {
			var buf bytes.Buffer
			So(EncodeStatus(&buf, "json", status), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, `"average_fidelity"`)
			So(buf.String(), ShouldContainSubstring, `"coherence_time"`)

			var decoded Status
			So(json.Unmarshal(buf.Bytes(), &decoded), ShouldBeNil)
			So(decoded, ShouldResemble, status)
		})

		Convey("YAML should decode back", func() {
			var buf bytes.Buffer
			So(EncodeStatus(&buf, "yaml", status), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "total_berry_phase:")

			var decoded Status
			So(yaml.Unmarshal(buf.Bytes(), &decoded), ShouldBeNil)
			So(decoded.Qubits["q0"].Errors, ShouldEqual, 1)
		})

		Convey("msgpack should decode back", func() {
			var buf bytes.Buffer
			So(EncodeStatus(&buf, "msgpack", status), ShouldBeNil)

			var decoded Status
			So(msgpack.Unmarshal(buf.Bytes(), &decoded), ShouldBeNil)
			So(decoded.TotalBerryPhase, ShouldEqual, math.Pi)
		})

		Convey("Unknown formats should be rejected", func() {
			So(EncodeStatus(&bytes.Buffer{}, "xml", status), ShouldNotBeNil)
		})
	})
}
