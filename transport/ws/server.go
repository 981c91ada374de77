package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kevinxiao27/tickwire/transport"
)

type inbound struct {
	client  transport.ClientID
	kind    inboundKind
	channel transport.ChannelID
	payload []byte
}

type inboundKind uint8

const (
	inboundConnect inboundKind = iota
	inboundMessage
	inboundDisconnect
)

// Server accepts websocket clients for a transport.Server. Connection
// goroutines only touch the inbox; Pump applies it on the caller's
// goroutine so the session never sees concurrent access.
type Server struct {
	transport   *transport.Server
	upgrader    websocket.Upgrader
	writePeriod time.Duration

	mu    sync.Mutex
	conns map[transport.ClientID]*websocket.Conn
	inbox []inbound
}

func NewServer(t *transport.Server, writePeriod time.Duration) *Server {
	return &Server{
		transport:   t,
		writePeriod: writePeriod,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[transport.ClientID]*websocket.Conn),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("tickwire: websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.New()
	conn.SetWriteDeadline(time.Now().Add(s.writePeriod))
	if err := conn.WriteMessage(websocket.BinaryMessage, encodeHello(id)); err != nil {
		conn.Close()
		return
	}

	s.mu.Lock()
	s.conns[id] = conn
	s.inbox = append(s.inbox, inbound{client: id, kind: inboundConnect})
	s.mu.Unlock()
	slog.Info("tickwire: websocket client connected", "client", id, "remote", r.RemoteAddr)

	s.read(id, conn)
}

func (s *Server) read(id transport.ClientID, conn *websocket.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, id)
		s.inbox = append(s.inbox, inbound{client: id, kind: inboundDisconnect})
		s.mu.Unlock()
		slog.Info("tickwire: websocket client disconnected", "client", id)
	}()

	for {
		kind, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		channel, payload, err := decodeFrame(frame)
		if err != nil {
			slog.Debug("tickwire: discarding frame", "client", id, "error", err)
			continue
		}
		s.mu.Lock()
		s.inbox = append(s.inbox, inbound{client: id, kind: inboundMessage, channel: channel, payload: payload})
		s.mu.Unlock()
	}
}

// Pump applies everything received since the last call to the transport
// and writes its queued outbound messages.
func (s *Server) Pump() {
	s.mu.Lock()
	inbox := s.inbox
	s.inbox = nil
	s.mu.Unlock()

	for _, in := range inbox {
		switch in.kind {
		case inboundConnect:
			s.transport.Connect(in.client)
		case inboundMessage:
			s.transport.Inject(in.client, in.channel, in.payload)
		case inboundDisconnect:
			s.transport.Disconnect(in.client)
		}
	}

	for _, out := range s.transport.DrainSent() {
		s.mu.Lock()
		conn, ok := s.conns[out.Client]
		s.mu.Unlock()
		if !ok {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(s.writePeriod))
		if err := conn.WriteMessage(websocket.BinaryMessage, encodeFrame(out.Channel, out.Payload)); err != nil {
			slog.Warn("tickwire: websocket write failed", "client", out.Client, "error", err)
			conn.Close()
		}
	}
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}
