package ws

import (
	"errors"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/avress/switchyard/internal/protocol"
	"github.com/avress/switchyard/internal/service/admission"
	"github.com/avress/switchyard/internal/service/hub"
)

// outboundQueue bounds the per-connection send buffer. A consumer that
// falls this far behind is disconnected instead of stalling the hub.
const outboundQueue = 64

// Handler upgrades HTTP requests into websocket connections and bridges
// them to the hub.
type Handler struct {
	hub      *hub.Hub
	gate     *admission.Controller
	upgrader websocket.Upgrader
}

// New builds the websocket transport handler.
func New(h *hub.Hub, gate *admission.Controller) *Handler {
	return &Handler{
		hub:  h,
		gate: gate,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWS)
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	source := sourceKey(r.RemoteAddr)

	if err := h.gate.Admit(source); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, admission.ErrRateLimited) {
			status = http.StatusTooManyRequests
		}
		log.Printf("[ws] rejected %s: %v", source, err)
		http.Error(w, err.Error(), status)
		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.gate.Release()
		log.Printf("[ws] upgrade failed for %s: %v", source, err)
		return
	}

	c := newConn(sock, r.RemoteAddr)
	h.hub.Connect(c)

	go c.writePump()
	c.readPump(h.hub)

	h.hub.Disconnect(c)
	h.gate.Release()
	c.Close()
}

// sourceKey reduces a remote address to the per-source rate key.
func sourceKey(remote string) string {
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}

// conn adapts one websocket to the hub's Conn interface. The read and
// write pumps are split so a slow browser never blocks inbound traffic.
type conn struct {
	sock *websocket.Conn
	addr string
	send chan protocol.Event

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(sock *websocket.Conn, addr string) *conn {
	return &conn{
		sock: sock,
		addr: addr,
		send: make(chan protocol.Event, outboundQueue),
		done: make(chan struct{}),
	}
}

// Send queues an event, best-effort. A full queue means the consumer is
// too slow; the connection is torn down rather than blocking the caller.
func (c *conn) Send(ev protocol.Event) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		log.Printf("[ws] dropping slow consumer %s", c.addr)
		c.Close()
	}
}

// Close is idempotent and unblocks both pumps.
func (c *conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}

func (c *conn) RemoteAddr() string {
	return c.addr
}

// readPump feeds inbound frames to the hub until the socket dies.
func (c *conn) readPump(h *hub.Hub) {
	for {
		_, message, err := c.sock.ReadMessage()
		if err != nil {
			return
		}
		h.HandleMessage(c, string(message))
	}
}

// writePump drains the send queue onto the socket.
func (c *conn) writePump() {
	for {
		select {
		case ev := <-c.send:
			if err := c.sock.WriteJSON(ev); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
