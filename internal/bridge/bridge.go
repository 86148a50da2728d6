// Package bridge contains the runtime wiring for rovbridge: it constructs
// the codec, serial transport, watchdog and control server from a Config
// and manages their lifecycle.
package bridge

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"rovbridge/internal/codec"
	"rovbridge/internal/device"
	"rovbridge/internal/hub"
	"rovbridge/internal/model"
	"rovbridge/internal/transport"
	"rovbridge/internal/watchdog"
)

// Bridge owns the component graph. Control messages flow
// hub -> codec -> transport; the watchdog races against fresh samples and
// forces a stop frame through the same path when input goes stale.
type Bridge struct {
	cfg model.Config
	log zerolog.Logger

	codec     *codec.Codec
	transport *transport.Transport
	watchdog  *watchdog.Watchdog
	server    *hub.Server

	started   bool
	startLock sync.Mutex
}

// New validates cfg and constructs a Bridge driving the configured serial
// device.
func New(cfg model.Config, log zerolog.Logger) (*Bridge, error) {
	return NewWithDialer(cfg, device.SerialDialer(cfg.Serial.Device, cfg.Serial.Baud), log)
}

// NewWithDialer is New with an injectable serial dialer.
func NewWithDialer(cfg model.Config, dial device.Dialer, log zerolog.Logger) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	b := &Bridge{cfg: cfg, log: log}
	b.codec = codec.New(cfg.Drive.Deadzone, cfg.Drive.MaxSpeed)
	b.transport = transport.New(dial, cfg.Serial.RetryInterval(),
		log.With().Str("component", "transport").Logger())
	b.watchdog = watchdog.New(cfg.Watchdog.CheckInterval(), cfg.Watchdog.StaleAfter(),
		b.forceStop, log.With().Str("component", "watchdog").Logger())
	b.server = hub.New(cfg.ListenAddr, b.handleSample,
		log.With().Str("component", "hub").Logger())

	b.transport.OnLinkLost(b.handleLinkLost)
	b.transport.OnSensorLine(b.server.Broadcast)
	return b, nil
}

// Start brings up the transport, watchdog and control server. A listen
// failure tears the others back down and is returned to the caller.
func (b *Bridge) Start() error {
	b.startLock.Lock()
	defer b.startLock.Unlock()
	if b.started {
		return nil
	}
	b.transport.Start()
	b.watchdog.Start()
	if err := b.server.Start(); err != nil {
		b.watchdog.Stop()
		b.transport.Stop()
		return err
	}
	b.started = true
	return nil
}

// Stop shuts the components down in input-to-output order so no timer or
// session outlives the serial handle.
func (b *Bridge) Stop() {
	b.startLock.Lock()
	defer b.startLock.Unlock()
	if !b.started {
		return
	}
	b.server.Stop()
	b.watchdog.Stop()
	b.transport.Stop()
	b.started = false
}

// handleSample is the per-message control path: arm the watchdog, encode,
// transmit. A send failure is not fatal; the transport already degraded
// itself and will reconnect.
func (b *Bridge) handleSample(s model.ControlSample) {
	b.watchdog.Touch(s.ReceivedAt)
	if err := b.transport.Send(b.codec.Encode(s)); err != nil {
		b.log.Debug().Err(err).Msg("control frame not delivered")
	}
}

// forceStop pushes a synthetic zero sample through the normal
// codec -> transport path.
func (b *Bridge) forceStop() {
	if err := b.transport.Send(b.codec.Encode(model.ControlSample{})); err != nil {
		b.log.Warn().Err(err).Msg("stop frame not delivered")
	}
}

// handleLinkLost makes one best-effort stop attempt when the serial link
// drops mid-session. If the link is truly down the attempt fails and the
// actuator firmware's own fail-safe is the last line of defense.
func (b *Bridge) handleLinkLost() {
	b.forceStop()
}
