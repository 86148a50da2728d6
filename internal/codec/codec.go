// Package codec converts normalized control samples into motor frames for
// the actuator controller. The conversion is a pure function: deadzone,
// then a linear map to the actuator's signed speed range, independently per
// side (differential drive).
package codec

import (
	"math"

	"rovbridge/internal/model"
)

// Codec maps control samples to motor frames.
type Codec struct {
	deadzone float64
	maxSpeed int
}

// New constructs a Codec with the given deadzone threshold and actuator
// speed range. maxSpeed is the magnitude of the native range, e.g. 127
// for [-127, 127].
func New(deadzone float64, maxSpeed int) *Codec {
	return &Codec{deadzone: deadzone, maxSpeed: maxSpeed}
}

// Encode converts a ControlSample into a MotorFrame. Construction never
// fails: inputs are re-clamped so any sample yields a frame within the
// actuator's range.
func (c *Codec) Encode(s model.ControlSample) MotorFrame {
	return MotorFrame{
		Left:  c.axisSpeed(s.Left),
		Right: c.axisSpeed(s.Right),
	}
}

// axisSpeed applies clamp, deadzone and linear scaling to one axis.
func (c *Codec) axisSpeed(v float64) int8 {
	v = model.ClampAxis(v)
	if math.Abs(v) < c.deadzone {
		return 0
	}
	return int8(math.Round(v * float64(c.maxSpeed)))
}
