package bridge

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"rovbridge/internal/codec"
	"rovbridge/internal/device"
	"rovbridge/internal/model"
	"rovbridge/internal/transport"
)

type fakeDevice struct {
	mu        sync.Mutex
	writes    [][]byte
	lines     chan string
	closeOnce sync.Once
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{lines: make(chan string, 16)}
}

func (d *fakeDevice) Write(b []byte) error {
	d.mu.Lock()
	d.writes = append(d.writes, append([]byte(nil), b...))
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) ReadLine(timeout time.Duration) (string, error) {
	line, ok := <-d.lines
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

func (d *fakeDevice) Close() error {
	d.closeOnce.Do(func() { close(d.lines) })
	return nil
}

func (d *fakeDevice) frames() []codec.MotorFrame {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []codec.MotorFrame
	for _, w := range d.writes {
		f, err := codec.DecodeFrame(w)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

func testConfig() model.Config {
	cfg := model.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Serial.RetryMillis = 10
	cfg.Watchdog.CheckMillis = 10
	cfg.Watchdog.StaleMillis = 60
	return cfg
}

func startBridge(t *testing.T) (*Bridge, *fakeDevice, *websocket.Conn) {
	t.Helper()
	dev := newFakeDevice()
	dial := device.Dialer(func() (device.Device, error) { return dev, nil })
	b, err := NewWithDialer(testConfig(), dial, zerolog.Nop())
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("start bridge: %v", err)
	}
	if !waitFor(func() bool { return b.transport.State() == transport.Connected }) {
		t.Fatal("transport never connected")
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+b.server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return b, dev, conn
}

func TestBridgeControlPath(t *testing.T) {
	Convey("a joystick message becomes a motor frame on the wire", t, func() {
		b, dev, conn := startBridge(t)
		defer b.Stop()
		defer conn.Close()

		So(conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"Data":["joystick","0.5000, -0.3000"]}`)), ShouldBeNil)

		So(waitFor(func() bool { return len(dev.frames()) == 1 }), ShouldBeTrue)
		So(dev.frames()[0], ShouldResemble, codec.MotorFrame{Left: 64, Right: -38})
	})
}

func TestBridgeStaleness(t *testing.T) {
	Convey("silence after a sample produces exactly one stop frame", t, func() {
		b, dev, conn := startBridge(t)
		defer b.Stop()
		defer conn.Close()

		So(conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"Data":["joystick","0.5000, 0.5000"]}`)), ShouldBeNil)
		So(waitFor(func() bool { return len(dev.frames()) == 1 }), ShouldBeTrue)

		// stale threshold is 60ms with a 10ms check; the stop must land soon
		// after and only once
		So(waitFor(func() bool { return len(dev.frames()) == 2 }), ShouldBeTrue)
		So(dev.frames()[1], ShouldResemble, codec.Stop)

		time.Sleep(200 * time.Millisecond)
		So(len(dev.frames()), ShouldEqual, 2)

		Convey("a fresh sample re-arms the watchdog for the next episode", func() {
			So(conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"Data":["joystick","0.2000, 0.2000"]}`)), ShouldBeNil)
			So(waitFor(func() bool { return len(dev.frames()) == 3 }), ShouldBeTrue)
			So(waitFor(func() bool { return len(dev.frames()) == 4 }), ShouldBeTrue)
			So(dev.frames()[3], ShouldResemble, codec.Stop)
		})
	})
}

func TestBridgeMalformedBurst(t *testing.T) {
	Convey("invalid messages never count as liveness", t, func() {
		b, dev, conn := startBridge(t)
		defer b.Stop()
		defer conn.Close()

		So(conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"Data":["joystick","0.5000, 0.5000"]}`)), ShouldBeNil)
		So(waitFor(func() bool { return len(dev.frames()) == 1 }), ShouldBeTrue)

		// a burst of junk keeps arriving while the real input goes stale
		for i := 0; i < 10; i++ {
			So(conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"Data":["joystick","not, numbers"]}`)), ShouldBeNil)
			time.Sleep(10 * time.Millisecond)
		}

		So(waitFor(func() bool { return len(dev.frames()) == 2 }), ShouldBeTrue)
		So(dev.frames()[1], ShouldResemble, codec.Stop)

		time.Sleep(150 * time.Millisecond)
		So(len(dev.frames()), ShouldEqual, 2)
	})
}

func TestBridgeSensorBroadcast(t *testing.T) {
	Convey("sensor lines from the serial side reach websocket clients", t, func() {
		b, dev, conn := startBridge(t)
		defer b.Stop()
		defer conn.Close()

		dev.lines <- "##distance##42.1\n"

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		So(err, ShouldBeNil)
		So(string(msg), ShouldEqual, `{"Data":["distance","42.1"]}`)
	})
}
