package codec

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"rovbridge/internal/model"
)

func TestEncode(t *testing.T) {
	c := New(0.05, 127)

	Convey("differential drive mapping scales each side independently", t, func() {
		f := c.Encode(model.NewControlSample(0.5, -0.3, time.Now()))
		So(f.Left, ShouldEqual, 64)
		So(f.Right, ShouldEqual, -38)
	})

	Convey("axis values below the deadzone map to exactly zero", t, func() {
		f := c.Encode(model.NewControlSample(0.02, 0.0, time.Now()))
		So(f.Left, ShouldEqual, 0)
		So(f.Right, ShouldEqual, 0)

		f = c.Encode(model.NewControlSample(-0.049, 0.049, time.Now()))
		So(f.Left, ShouldEqual, 0)
		So(f.Right, ShouldEqual, 0)
	})

	Convey("a value at the deadzone boundary is scaled, not zeroed", t, func() {
		f := c.Encode(model.NewControlSample(0.05, -0.05, time.Now()))
		So(f.Left, ShouldEqual, 6)
		So(f.Right, ShouldEqual, -6)
	})

	Convey("out-of-range input encodes like its clamped value", t, func() {
		for _, v := range []float64{1.5, 2.0, 100.0} {
			over := c.Encode(model.ControlSample{Left: v, Right: -v})
			edge := c.Encode(model.ControlSample{Left: 1.0, Right: -1.0})
			So(over, ShouldResemble, edge)
			So(over.Left, ShouldEqual, 127)
			So(over.Right, ShouldEqual, -127)
		}
	})

	Convey("encoding is deterministic", t, func() {
		s := model.NewControlSample(0.7321, -0.1187, time.Now())
		first := c.Encode(s)
		for i := 0; i < 10; i++ {
			So(c.Encode(s), ShouldResemble, first)
		}
	})

	Convey("a reduced max speed bounds the output range", t, func() {
		slow := New(0.05, 63)
		f := slow.Encode(model.NewControlSample(1.0, -1.0, time.Now()))
		So(f.Left, ShouldEqual, 63)
		So(f.Right, ShouldEqual, -63)
	})
}

func TestClampAxis(t *testing.T) {
	Convey("ClampAxis limits values to [-1, 1]", t, func() {
		So(model.ClampAxis(0.25), ShouldEqual, 0.25)
		So(model.ClampAxis(-1.0), ShouldEqual, -1.0)
		So(model.ClampAxis(1.0), ShouldEqual, 1.0)
		So(model.ClampAxis(3.7), ShouldEqual, 1.0)
		So(model.ClampAxis(-42.0), ShouldEqual, -1.0)
	})
}
