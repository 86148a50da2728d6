// Package model defines shared message structures for rovbridge.
package model

import "time"

// ControlSample is one snapshot of the two joystick axis values.
// Each new sample supersedes the previous one; nothing is queued.
type ControlSample struct {
	Left       float64 // left motor axis, clamped to [-1, 1]
	Right      float64 // right motor axis, clamped to [-1, 1]
	ReceivedAt time.Time
}

// NewControlSample builds a sample with both axes clamped to [-1, 1].
// Out-of-range input is clamped, never rejected, so a misbehaving client
// cannot exceed physical actuator limits.
func NewControlSample(left, right float64, at time.Time) ControlSample {
	return ControlSample{
		Left:       ClampAxis(left),
		Right:      ClampAxis(right),
		ReceivedAt: at,
	}
}

// ClampAxis limits v to the normalized axis range [-1, 1].
func ClampAxis(v float64) float64 {
	switch {
	case v < -1.0:
		return -1.0
	case v > 1.0:
		return 1.0
	default:
		return v
	}
}
