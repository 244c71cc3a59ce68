package realtime

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10 // 64 KiB

	defaultBufferSize = 64
)

// Gateway upgrades HTTP requests into websocket connections feeding the
// coordinator.
type Gateway struct {
	coordinator *Coordinator
	upgrader    websocket.Upgrader
	log         *zap.Logger
}

// NewGateway constructs a Gateway. An allowedOrigin of "*" accepts any
// origin; otherwise same-origin and loopback requests are accepted, plus the
// configured origin.
func NewGateway(coordinator *Coordinator, allowedOrigin string) *Gateway {
	allowedOrigin = strings.TrimSpace(allowedOrigin)

	return &Gateway{
		coordinator: coordinator,
		log:         logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if allowedOrigin != "" && strings.EqualFold(strings.TrimRight(origin, "/"), strings.TrimRight(allowedOrigin, "/")) {
					return true
				}
				originHost := hostWithoutPort(origin)
				return originHost == hostWithoutPort(r.Host) || isLoopback(originHost)
			},
		},
	}
}

// Serve upgrades the request and runs the connection's read loop until the
// client goes away.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request) {
	socket, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newWSConn(g.coordinator, socket, g.log)

	go conn.writeLoop()
	conn.readLoop()
}

type wsConn struct {
	coordinator *Coordinator
	socket      *websocket.Conn
	send        chan Message
	once        sync.Once
	log         *zap.Logger

	// mu orders the closed flag against channel sends: once closed is set no
	// goroutine is inside the select below, so teardown may close(send).
	mu     sync.Mutex
	closed bool
}

func newWSConn(coordinator *Coordinator, socket *websocket.Conn, log *zap.Logger) *wsConn {
	return &wsConn{
		coordinator: coordinator,
		socket:      socket,
		send:        make(chan Message, defaultBufferSize),
		log:         log,
	}
}

// Send enqueues an event without blocking. A client that cannot keep up is
// dropped rather than allowed to stall the room; its teardown runs on a
// fresh goroutine because the caller may be mid-broadcast inside the hub and
// teardown re-enters hub and coordinator state.
func (c *wsConn) Send(event string, data any) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	select {
	case c.send <- Message{Event: event, Data: data}:
		c.mu.Unlock()
	default:
		c.closed = true
		c.mu.Unlock()
		c.log.Warn("dropping backpressure client")
		go c.teardown()
	}
}

// Close tears the connection down exactly once. Safe to call concurrently
// with Send.
func (c *wsConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.teardown()
}

func (c *wsConn) teardown() {
	c.once.Do(func() {
		c.coordinator.ConnectionClosed(c)
		close(c.send)
		_ = c.socket.Close()
	})
}

func (c *wsConn) readLoop() {
	defer c.Close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("unexpected close", zap.Error(err))
			}
			return
		}

		if len(payload) == 0 {
			continue
		}

		var msg InboundMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.log.Warn("invalid message envelope", zap.Error(err))
			c.Send(EventError, ErrorData{Message: "Invalid payload"})
			continue
		}

		c.coordinator.Dispatch(context.Background(), c, msg)
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
