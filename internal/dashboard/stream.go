package dashboard

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/firesafely/marketplace/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the session middleware already authenticated the request
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// unreadEvent is the single message type pushed over the stream.
type unreadEvent struct {
	UnreadCount int `json:"unread_count"`
}

// hub fans unread-count changes out to every connected stream.
type hub struct {
	mu     sync.Mutex
	subs   map[chan int]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan int]struct{})}
}

func (h *hub) subscribe() chan int {
	ch := make(chan int, 8)
	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subs[ch] = struct{}{}
	}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan int) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// broadcast drops the update for any subscriber whose buffer is full; the
// next change carries a fresh count anyway.
func (h *hub) broadcast(unread int) {
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- unread:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *hub) close() {
	h.mu.Lock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	h.closed = true
	h.mu.Unlock()
}

// streamNotifications upgrades the request and pushes the unread count on
// connect and after every synchronizer change until the client goes away.
func (h *Handler) streamNotifications(c *gin.Context) {
	comps := h.components(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WarnContext(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates := comps.hub.subscribe()
	defer comps.hub.unsubscribe(updates)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeEvent(conn, comps.notifications.UnreadCount()); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case unread, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			if err := writeEvent(conn, unread); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, unread int) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(unreadEvent{UnreadCount: unread})
}
