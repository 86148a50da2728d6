// Package hub terminates the websocket control stream: it parses inbound
// joystick messages, tracks the authoritative controller session and
// broadcasts sensor data to connected clients.
package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"rovbridge/internal/model"
)

// ControlChannel is the channel name carrying joystick axis pairs.
const ControlChannel = "joystick"

// Envelope is the wire shape of hub messages in both directions:
//
//	{"Data": ["<channel>", "<payload>"]}
//
// Inbound, the joystick channel payload is "<left>, <right>" with both axes
// as decimal strings. Outbound, sensor channels reuse the same shape.
type Envelope struct {
	Data []string `json:"Data"`
}

// EncodeData builds the outbound envelope for one channel/payload pair.
func EncodeData(channel, data string) ([]byte, error) {
	return json.Marshal(Envelope{Data: []string{channel, data}})
}

// ParseControl decodes an inbound message into a ControlSample. Any failure
// means the message must be dropped without touching the watchdog: a bad
// message is not evidence the controller is still alive. Axis values outside
// [-1, 1] are accepted syntactically and clamped by the sample constructor.
func ParseControl(raw []byte, now time.Time) (model.ControlSample, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.ControlSample{}, fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Data) != 2 {
		return model.ControlSample{}, errors.New("not a data message")
	}
	if env.Data[0] != ControlChannel {
		return model.ControlSample{}, fmt.Errorf("unexpected channel %q", env.Data[0])
	}
	parts := strings.Split(env.Data[1], ",")
	if len(parts) != 2 {
		return model.ControlSample{}, fmt.Errorf("expected 2 axis values, got %d", len(parts))
	}
	left, err := parseAxis(parts[0])
	if err != nil {
		return model.ControlSample{}, fmt.Errorf("left axis: %w", err)
	}
	right, err := parseAxis(parts[1])
	if err != nil {
		return model.ControlSample{}, fmt.Errorf("right axis: %w", err)
	}
	return model.NewControlSample(left, right, now), nil
}

// parseAxis parses one decimal axis value, rejecting non-finite numbers.
func parseAxis(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.New("invalid number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("value not finite")
	}
	return v, nil
}
