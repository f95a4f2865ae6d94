package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 32
)

// ErrSlowConsumer is returned by Send when the client's buffer is full.
var ErrSlowConsumer = errors.New("websocket send buffer full")

// Socket is a single WebSocket client with buffered outbound delivery.
type Socket struct {
	ws     *websocket.Conn
	send   chan []byte
	first  []byte
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// Upgrader builds a websocket.Upgrader that accepts the origins allowed by
// checkOrigin. A nil checkOrigin accepts same-origin requests only.
func Upgrader(checkOrigin func(*http.Request) bool) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
}

// Upgrade switches the request to the WebSocket protocol.
func Upgrade(u *websocket.Upgrader, w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*Socket, error) {
	ws, err := u.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Socket{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Send queues data for delivery without blocking.
func (s *Socket) Send(data []byte) error {
	select {
	case <-s.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Greet sets a frame that Run writes ahead of anything already queued by
// Send. It must be called before Run.
func (s *Socket) Greet(data []byte) {
	s.first = data
}

// Close closes the connection. It is safe to call more than once.
func (s *Socket) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.ws.Close()
	})
}

// Run pumps messages until the client disconnects or ctx ends. Each inbound
// text frame is passed to onMessage.
func (s *Socket) Run(ctx context.Context, onMessage func([]byte)) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writePump(ctx)
	}()

	s.readPump(onMessage)
	s.Close()
	wg.Wait()
}

func (s *Socket) readPump(onMessage func([]byte)) {
	s.ws.SetReadLimit(maxMessageSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Debug("WebSocket read failed", "error", err)
			}
			return
		}
		onMessage(data)
	}
}

func (s *Socket) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if s.first != nil {
		_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.ws.WriteMessage(websocket.TextMessage, s.first); err != nil {
			s.Close()
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			_ = s.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			s.Close()
			return
		case <-s.done:
			return
		case data := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}

// Forward delivers every payload published on subject to the socket until
// the returned function is called. Payloads dropped for a slow client are
// logged.
func (s *Socket) Forward(hub *Hub, subject string) (func(), error) {
	return hub.Subscribe(subject, func(data []byte) {
		if err := s.Send(data); err != nil {
			s.logger.Debug("Dropped event for WebSocket client", "subject", subject, "error", err)
		}
	})
}
