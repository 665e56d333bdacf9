package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/photo-gallery/backend/internal/logging"
	"github.com/photo-gallery/backend/internal/models"
)

// WebSocket message types for the gallery feed
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypePong = "pong"
)

const (
	feedSendBuffer   = 16
	feedWriteTimeout = 10 * time.Second
	feedMaxMessage   = 4 * 1024
)

// WSMessage is a message sent by a feed client
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type feedClient struct {
	conn *websocket.Conn
	send chan models.GalleryEvent
}

// GalleryFeed pushes gallery events to connected websocket clients.
// Slow clients whose buffer is full are disconnected.
type GalleryFeed struct {
	upgrader websocket.Upgrader
	logger   logging.Logger

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

// NewGalleryFeed creates a new gallery feed
func NewGalleryFeed(logger logging.Logger) *GalleryFeed {
	return &GalleryFeed{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
	}
}

// Clients returns the number of connected clients
func (f *GalleryFeed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Publish queues event for every connected client
func (f *GalleryFeed) Publish(event models.GalleryEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for cl := range f.clients {
		select {
		case cl.send <- event:
		default:
			f.removeLocked(cl)
			cl.conn.Close()
		}
	}
}

// Close disconnects all clients
func (f *GalleryFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for cl := range f.clients {
		f.removeLocked(cl)
		cl.conn.Close()
	}
}

// HandleWebSocket upgrades the connection and streams gallery events until
// the client disconnects
func (f *GalleryFeed) HandleWebSocket(c echo.Context) error {
	ws, err := f.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		f.logger.Warn(c.Request().Context(), "websocket upgrade failed", "error", err)
		return nil
	}
	ws.SetReadLimit(feedMaxMessage)

	cl := &feedClient{conn: ws, send: make(chan models.GalleryEvent, feedSendBuffer)}
	f.mu.Lock()
	f.clients[cl] = struct{}{}
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.writeLoop(cl)
	}()

	f.readLoop(cl)

	f.mu.Lock()
	f.removeLocked(cl)
	f.mu.Unlock()
	ws.Close()
	<-done
	return nil
}

func (f *GalleryFeed) readLoop(cl *feedClient) {
	for {
		var msg WSMessage
		if err := cl.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case MsgTypePing:
			f.mu.Lock()
			if _, ok := f.clients[cl]; ok {
				select {
				case cl.send <- models.GalleryEvent{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}:
				default:
				}
			}
			f.mu.Unlock()
		}
	}
}

func (f *GalleryFeed) writeLoop(cl *feedClient) {
	for event := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		if err := cl.conn.WriteJSON(event); err != nil {
			cl.conn.Close()
			// drain until the channel is closed by removeLocked
			for range cl.send {
			}
			return
		}
	}
}

// removeLocked unregisters cl and closes its send channel. f.mu must be held.
func (f *GalleryFeed) removeLocked(cl *feedClient) {
	if _, ok := f.clients[cl]; !ok {
		return
	}
	delete(f.clients, cl)
	close(cl.send)
}
