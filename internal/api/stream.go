package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/retinasim/internal/cells"
	"github.com/talgya/retinasim/internal/export"
)

// Hub fans exported frames out to websocket viewers. Slow viewers miss
// frames rather than stalling the simulation.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[uint64]chan []byte
	nextID  uint64
	latest  []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[uint64]chan []byte),
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish sends the frame at tick to every viewer.
func (h *Hub) Publish(tick uint64, snapshot []cells.Cell) error {
	b, err := json.Marshal(export.NewFrame(tick, snapshot))
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = b
	for id, ch := range h.clients {
		select {
		case ch <- b:
		default:
			slog.Debug("stream viewer lagging, frame dropped", "viewer", id, "tick", tick)
		}
	}
	return nil
}

func (h *Hub) join() (uint64, chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	ch := make(chan []byte, 8)
	if h.latest != nil {
		ch <- h.latest
	}
	h.clients[h.nextID] = ch
	return h.nextID, ch
}

func (h *Hub) leave(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// ServeHTTP upgrades the request and streams frames until the viewer
// disconnects. The most recent frame is sent first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, frames := h.join()
	defer h.leave(id)
	slog.Info("stream viewer connected", "viewer", id, "remote", clientIP(r))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Viewers send nothing; reading only detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stream viewer disconnected", "viewer", id)
			return
		case b := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}
