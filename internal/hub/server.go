package hub

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rovbridge/internal/model"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

const (
	// writeWait bounds every websocket write so a dead peer cannot hold a
	// writer goroutine forever.
	writeWait = 5 * time.Second

	// sendBuffer is the per-client broadcast backlog. When it is full the
	// client loses telemetry; it never blocks the sender.
	sendBuffer = 16
)

// Server accepts websocket control sessions on /ws. One session at a time
// is the authoritative controller; a new connection replaces the previous
// one immediately and messages from superseded sessions are dropped. Every
// connected client, authoritative or not, receives sensor broadcasts
// through its own buffered writer, so a stalled consumer can never block
// the control path.
type Server struct {
	addr     string
	onSample func(model.ControlSample)
	log      zerolog.Logger

	mu         sync.Mutex
	clients    map[*websocket.Conn]chan []byte
	controller *websocket.Conn
	closed     bool

	server *http.Server
	ln     net.Listener
	wg     sync.WaitGroup
}

// New constructs a Server listening on addr. Every successfully parsed
// control message is handed to onSample.
func New(addr string, onSample func(model.ControlSample), log zerolog.Logger) *Server {
	return &Server{
		addr:     addr,
		onSample: onSample,
		log:      log,
		clients:  map[*websocket.Conn]chan []byte{},
	}
}

// Start binds the listen address and serves websocket sessions in the
// background. A bind failure is returned synchronously since the bridge is
// unusable without its control endpoint.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.server = &http.Server{Handler: mux}
	s.ln = ln
	s.log.Info().Str("addr", ln.Addr().String()).Msg("control server listening")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("control server stopped")
		}
	}()
	return nil
}

// Addr returns the bound listen address once Start has succeeded.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop shuts down the HTTP server and closes every client connection.
// Sessions arriving after Stop are rejected.
func (s *Server) Stop() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	if s.server != nil {
		_ = s.server.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
}

// Broadcast queues one sensor channel/payload pair for all connected
// clients. The send is non-blocking: a client whose buffer is full loses
// the message, keeping the control path free of consumer backpressure.
func (s *Server) Broadcast(channel, data string) {
	msg, err := EncodeData(channel, data)
	if err != nil {
		s.log.Error().Err(err).Msg("encode broadcast")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, send := range s.clients {
		select {
		case send <- msg:
		default:
			s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("broadcast dropped for slow client")
		}
	}
}

// handleWS upgrades the connection and promotes it to authoritative
// controller. Last connection wins; the superseded session stays connected
// for broadcasts but its control messages are ignored.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	send := make(chan []byte, sendBuffer)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[conn] = send
	s.controller = conn
	s.wg.Add(2)
	s.mu.Unlock()
	s.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("controller connected")

	go func() {
		defer s.wg.Done()
		s.writeLoop(conn, send)
	}()
	go func() {
		defer s.wg.Done()
		s.readLoop(conn)
	}()
}

// writeLoop drains one client's send buffer with a deadline per write. On a
// write failure it closes the connection, which makes readLoop unregister
// the client and close the channel.
func (s *Server) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	for msg := range send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = conn.Close()
			break
		}
	}
	for range send {
		// drain until readLoop closes the channel
	}
}

// readLoop consumes one session's messages until it disconnects. A client
// disconnect does not force a stop frame: the watchdog catches it within
// the staleness threshold, keeping the stop path uniform.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		send := s.clients[conn]
		delete(s.clients, conn)
		if s.controller == conn {
			s.controller = nil
		}
		s.mu.Unlock()
		if send != nil {
			close(send)
		}
		_ = conn.Close()
		s.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("controller disconnected")
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		authoritative := s.controller == conn
		s.mu.Unlock()
		if !authoritative {
			s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("message from superseded session dropped")
			continue
		}
		sample, err := ParseControl(raw, time.Now())
		if err != nil {
			// dropped, connection stays open, watchdog untouched
			s.log.Warn().Err(err).Msg("malformed control message dropped")
			continue
		}
		s.onSample(sample)
	}
}
