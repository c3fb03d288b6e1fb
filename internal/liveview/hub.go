package liveview

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"tradeview/internal/models"
	"tradeview/pkg/metrics"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second

	// sendBuffer is how many snapshots may queue per viewer before the
	// viewer is considered too slow and dropped.
	sendBuffer = 8
)

// Hub broadcasts snapshots to connected websocket viewers. It implements
// Renderer. Each viewer owns a buffered send queue drained by a single write
// pump goroutine, so only one goroutine ever writes to a connection and a
// stalled viewer can never block the refresh loop; it just falls behind and
// gets dropped.
type Hub struct {
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	pingInterval time.Duration

	mu      sync.Mutex
	viewers map[*viewer]struct{}
}

var _ Renderer = (*Hub)(nil)

// viewer is one connected websocket client. All writes to conn go through
// writePump; everything else only touches the send queue.
type viewer struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *models.Snapshot
}

// NewHub creates an empty hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingInterval: pingInterval,
		viewers:      make(map[*viewer]struct{}),
	}
}

// Render queues the snapshot for every connected viewer without blocking.
// A viewer whose queue is full is dropped on the spot.
func (h *Hub) Render(snapshot *models.Snapshot) {
	h.mu.Lock()
	var dropped []*viewer
	for v := range h.viewers {
		select {
		case v.send <- snapshot:
		default:
			dropped = append(dropped, v)
		}
	}
	for _, v := range dropped {
		h.removeLocked(v)
	}
	count := len(h.viewers)
	h.mu.Unlock()

	if len(dropped) > 0 {
		metrics.ConnectedViewers.Set(float64(count))
		h.logger.WithFields(logrus.Fields{
			"dropped": len(dropped),
			"viewers": count,
		}).Warn("Dropped slow viewers")
	}
}

// Serve upgrades an HTTP request and registers the viewer until its
// connection closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	v := &viewer{
		hub:  h,
		conn: conn,
		send: make(chan *models.Snapshot, sendBuffer),
	}

	h.mu.Lock()
	h.viewers[v] = struct{}{}
	count := len(h.viewers)
	h.mu.Unlock()
	metrics.ConnectedViewers.Set(float64(count))

	h.logger.WithField("viewers", count).Info("Viewer connected")

	go v.writePump()

	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	// Viewers only listen; the read loop just detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(v)
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// writePump is the sole writer for one connection. It serializes queued
// snapshots and keepalive pings, and closes the connection when the queue
// is closed or a write fails.
func (v *viewer) writePump() {
	ticker := time.NewTicker(v.hub.pingInterval)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case snapshot, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := v.conn.WriteJSON(snapshot); err != nil {
				v.hub.remove(v)
				return
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				v.hub.remove(v)
				return
			}
		}
	}
}

func (h *Hub) remove(v *viewer) {
	h.mu.Lock()
	present := h.removeLocked(v)
	count := len(h.viewers)
	h.mu.Unlock()

	if present {
		metrics.ConnectedViewers.Set(float64(count))
		h.logger.WithField("viewers", count).Info("Viewer disconnected")
	}
}

// removeLocked unregisters the viewer and closes its queue, which makes the
// write pump shut the connection down. Idempotent; callers hold h.mu.
func (h *Hub) removeLocked(v *viewer) bool {
	if _, ok := h.viewers[v]; !ok {
		return false
	}
	delete(h.viewers, v)
	close(v.send)
	return true
}
