// Package transport owns the serial connection to the actuator controller.
// It delivers motor frames, reads inbound sensor lines, detects link loss
// and reconnects autonomously on a fixed delay.
package transport

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rovbridge/internal/codec"
	"rovbridge/internal/device"
)

// State is the serial connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ErrNotConnected is returned by Send while the link is down. Callers must
// not assume delivery succeeded; the frame is not queued.
var ErrNotConnected = errors.New("serial link not connected")

// Transport manages the serial device lifecycle. Transport errors are never
// fatal to the process; they degrade the state to Disconnected and the run
// loop retries indefinitely.
type Transport struct {
	dial  device.Dialer
	retry time.Duration
	log   zerolog.Logger

	mu    sync.Mutex
	dev   device.Device
	state State

	// wmu serializes device writes so frames never interleave, without
	// holding the state lock across a potentially slow write.
	wmu sync.Mutex

	onLinkLost   func()
	onSensorLine func(channel, data string)

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Transport that opens the device through dial and waits
// retry between failed attempts.
func New(dial device.Dialer, retry time.Duration, log zerolog.Logger) *Transport {
	return &Transport{
		dial:  dial,
		retry: retry,
		log:   log,
		state: Disconnected,
		stop:  make(chan struct{}),
	}
}

// OnLinkLost registers the link-lost notification. Must be set before Start.
func (t *Transport) OnLinkLost(fn func()) { t.onLinkLost = fn }

// OnSensorLine registers the handler for inbound sensor lines. Must be set
// before Start.
func (t *Transport) OnSensorLine(fn func(channel, data string)) { t.onSensorLine = fn }

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start launches the connect/read loop in a background goroutine.
func (t *Transport) Start() {
	t.wg.Add(1)
	go t.run()
}

// Stop tears down the run loop and closes the device. Idempotent.
func (t *Transport) Stop() {
	select {
	case <-t.stop:
		// already closed
	default:
		close(t.stop)
	}
	t.mu.Lock()
	dev := t.dev
	t.dev = nil
	t.state = Disconnected
	t.mu.Unlock()
	if dev != nil {
		_ = dev.Close()
	}
	t.wg.Wait()
}

// Send writes one frame to the device under the write lock so frames are
// never interleaved. The state lock is not held across the write, so State
// and Stop stay responsive even when the device hangs; the device itself
// bounds each write with a timeout. A write failure drops the link, fires
// the link-lost notification and starts the reconnect cycle.
func (t *Transport) Send(f codec.MotorFrame) error {
	t.mu.Lock()
	if t.state != Connected || t.dev == nil {
		t.mu.Unlock()
		return ErrNotConnected
	}
	dev := t.dev
	t.mu.Unlock()

	t.wmu.Lock()
	err := dev.Write(f.Bytes())
	t.wmu.Unlock()
	if err == nil {
		return nil
	}
	t.demote(dev, err)
	return fmt.Errorf("send frame: %w", err)
}

// run alternates between connecting and reading until Stop is called.
func (t *Transport) run() {
	defer t.wg.Done()
	for {
		if !t.connect() {
			return
		}
		t.readLoop()
		if t.stopped() {
			return
		}
	}
}

// connect retries the dialer on a fixed delay until it succeeds or Stop is
// called. Returns false when stopped.
func (t *Transport) connect() bool {
	for {
		if t.stopped() {
			return false
		}
		t.setState(Connecting)
		dev, err := t.dial()
		if err == nil {
			t.mu.Lock()
			t.dev = dev
			t.state = Connected
			t.mu.Unlock()
			t.log.Info().Msg("serial link connected")
			return true
		}
		t.setState(Disconnected)
		t.log.Warn().Err(err).Dur("retry_in", t.retry).Msg("serial open failed")
		select {
		case <-t.stop:
			return false
		case <-time.After(t.retry):
		}
	}
}

// readLoop consumes inbound sensor lines until the device errors out or
// Stop closes it. A read error while Connected drops the link and fires
// the link-lost notification.
func (t *Transport) readLoop() {
	for {
		t.mu.Lock()
		dev := t.dev
		t.mu.Unlock()
		if dev == nil {
			return
		}
		line, err := dev.ReadLine(0)
		if err != nil {
			if t.stopped() {
				return
			}
			t.demote(dev, err)
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		channel, data, ok := ParseSensorLine(line)
		if !ok {
			t.log.Debug().Str("line", line).Msg("invalid sensor line, skipped")
			continue
		}
		if t.onSensorLine != nil {
			t.onSensorLine(channel, data)
		}
	}
}

// demote transitions Connected -> Disconnected exactly once per episode and
// fires the link-lost notification. A no-op when the link was already down
// or when failed is no longer the current device, so a Send failure and the
// read loop never double-notify and a late failure on a stale device cannot
// drop a freshly reconnected link.
func (t *Transport) demote(failed device.Device, cause error) {
	t.mu.Lock()
	if t.state != Connected || t.dev != failed {
		t.mu.Unlock()
		return
	}
	t.dev = nil
	t.state = Disconnected
	cb := t.onLinkLost
	t.mu.Unlock()

	_ = failed.Close()
	t.log.Warn().Err(cause).Msg("serial link lost")
	if cb != nil {
		cb()
	}
}

func (t *Transport) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Transport) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

// ParseSensorLine splits a "##channel##data" line emitted by the actuator
// controller. Data is trimmed of surrounding whitespace. ok is false when
// the framing markers are missing or the channel name is empty.
func ParseSensorLine(line string) (channel, data string, ok bool) {
	if !strings.HasPrefix(line, "##") {
		return "", "", false
	}
	rest := line[2:]
	i := strings.Index(rest, "##")
	if i <= 0 {
		return "", "", false
	}
	return rest[:i], strings.TrimSpace(rest[i+2:]), true
}
