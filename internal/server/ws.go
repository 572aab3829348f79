package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ayusman/parallax/internal/log"
	"github.com/ayusman/parallax/internal/render"
	"github.com/ayusman/parallax/internal/server/api"
	"github.com/ayusman/parallax/internal/smoother"
)

const (
	writeWait  = 2 * time.Second
	sendBuffer = 4
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// CameraMessage is pushed to browsers once per rendered frame.
type CameraMessage struct {
	Type string `json:"type"`
	api.CameraResponse
	Frame uint64 `json:"frame"`
}

// ErrorMessage reports a capture problem to browsers.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// CameraHub is the Renderer behind the browser viewer: every frame it
// broadcasts the current camera pose to connected pages, which rasterize
// the scene themselves.
type CameraHub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	state    smoother.CameraState
	settled  func() bool
	frame    uint64
	last     []byte
	dirty    bool
	disposed bool

	// sentSettled is the settled flag carried by the last broadcast.
	sentSettled bool
}

var _ render.Renderer = (*CameraHub)(nil)

// NewCameraHub creates a hub. settled, if non-nil, reports whether the
// camera has converged.
func NewCameraHub(settled func() bool) *CameraHub {
	return &CameraHub{
		clients: make(map[string]*client),
		settled: settled,
	}
}

// ApplyCamera records the pose for the next frame.
func (h *CameraHub) ApplyCamera(state smoother.CameraState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if state != h.state || h.last == nil {
		h.dirty = true
	}
	h.state = state
}

// RenderFrame broadcasts the pose if it, or the settled flag, changed since
// the last frame.
func (h *CameraHub) RenderFrame() error {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return nil
	}
	h.frame++

	settled := false
	if h.settled != nil {
		settled = h.settled()
	}
	if !h.dirty && settled == h.sentSettled {
		h.mu.Unlock()
		return nil
	}
	h.dirty = false
	h.sentSettled = settled

	msg, err := json.Marshal(CameraMessage{
		Type:           "camera",
		CameraResponse: api.NewCameraResponse(h.state, settled),
		Frame:          h.frame,
	})
	if err != nil {
		h.mu.Unlock()
		return err
	}
	h.last = msg
	for _, c := range h.clients {
		c.offer(msg)
	}
	h.mu.Unlock()
	return nil
}

// BroadcastError pushes a capture error to every page.
func (h *CameraHub) BroadcastError(err error) {
	msg, merr := json.Marshal(ErrorMessage{Type: "error", Error: err.Error()})
	if merr != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.offer(msg)
	}
}

// Dispose disconnects every client. Later frames are dropped.
func (h *CameraHub) Dispose() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.disposed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	return nil
}

// Clients returns the number of connected pages.
func (h *CameraHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// offer queues msg, dropping the oldest queued frame when the client is
// slow. Callers hold the hub lock, so send is never closed underneath.
func (c *client) offer(msg []byte) {
	for {
		select {
		case c.send <- msg:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

// ServeHTTP handles WebSocket upgrade requests on /api/camera/ws.
func (h *CameraHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	disposed := h.disposed
	h.mu.RUnlock()
	if disposed {
		http.Error(w, "Viewer closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn(log.Fields{"component": "server", "error": err.Error()}, "[server.CameraHub] websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c.id] = c
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()

	log.Debug(log.Fields{"component": "server", "client": c.id}, "[server.CameraHub] client connected")

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and unregisters on disconnect.
func (h *CameraHub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c.id]; ok {
			delete(h.clients, c.id)
			close(c.send)
		}
		h.mu.Unlock()
		c.conn.Close()
		log.Debug(log.Fields{"component": "server", "client": c.id}, "[server.CameraHub] client disconnected")
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *CameraHub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "viewer closed"))
}
