// Package viewer serves the browser-facing side of surfcast: an HTML page
// that renders a surface and the WebSocket endpoint that keeps it
// synchronized.
package viewer

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/lumava/surfcast/surface"
)

const writeWait = 10 * time.Second

// closeSurfaceNotFound is sent to sockets opened against an unknown surface.
const closeSurfaceNotFound = 4004

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves the viewer page and WebSocket routes.
type Handler struct {
	svc    *surface.Service
	logger *slog.Logger
}

// New creates a viewer Handler.
func New(svc *surface.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the viewer router: the surface page and its socket.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/surfaces/{surfaceID}", h.handlePage)
	r.Get("/ws/{surfaceID}", h.handleSocket)
	return r
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	surfaceID := chi.URLParam(r, "surfaceID")
	st, err := h.svc.Get(r.Context(), surfaceID)
	if err != nil {
		if errors.Is(err, surface.ErrSurfaceNotFound) {
			http.Error(w, "surface not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	renderPage(w, st)
}

func (h *Handler) handleSocket(w http.ResponseWriter, r *http.Request) {
	surfaceID := chi.URLParam(r, "surfaceID")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "surface_id", surfaceID, "error", err)
		return
	}

	client := &wsClient{conn: conn}
	if !h.svc.Join(r.Context(), surfaceID, client) {
		// Unknown surface or replay failure: tell the client why before
		// dropping the connection.
		msg := websocket.FormatCloseMessage(closeSurfaceNotFound, "Surface not found")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}
	defer func() {
		h.svc.Leave(surfaceID, client)
		conn.Close()
		h.logger.Info("viewer disconnected", "surface_id", surfaceID)
	}()

	// Viewers only listen; the read loop exists to process control frames
	// and to notice the peer going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wsClient adapts one WebSocket connection to the subscriber contract.
// Gorilla connections allow a single concurrent writer, so all outbound
// frames serialize through mu.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClient) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *wsClient) Close() error {
	return c.conn.Close()
}
