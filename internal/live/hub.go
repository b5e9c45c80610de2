// Package live provides the websocket live-estimate channel and fans out
// dashboard updates to a user's open sessions.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/ecotrace/internal/observability"
	"github.com/ashureev/ecotrace/internal/tracker"
)

// Conn is the part of *websocket.Conn the hub needs.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Hub tracks live connections per user and session.
type Hub struct {
	mu           sync.RWMutex
	active       map[string]map[string]Conn
	writeTimeout time.Duration
}

var _ tracker.Publisher = (*Hub)(nil)

// NewHub creates an empty hub. writeTimeout bounds every push write.
func NewHub(writeTimeout time.Duration) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{
		active:       make(map[string]map[string]Conn),
		writeTimeout: writeTimeout,
	}
}

// Count returns the number of open sessions of userID.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID])
}

// Register adds conn for a user/session, closing any connection it replaces.
func (h *Hub) Register(userID, sessionID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[string]Conn)
	}

	if existing, exists := h.active[userID][sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	} else {
		observability.LiveSessionOpened()
	}

	h.active[userID][sessionID] = conn
	slog.Info("Live session registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes conn if it is still the registered one for the session.
func (h *Hub) Unregister(userID, sessionID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessions, ok := h.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(h.active, userID)
			}
			observability.LiveSessionClosed()
			slog.Info("Live session unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// CloseUser terminates all sessions of userID.
func (h *Hub) CloseUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.active[userID]
	if !ok {
		return
	}
	for sid, conn := range sessions {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
		observability.LiveSessionClosed()
		slog.Info("Live session closed", "user_id", userID, "session_id", sid)
	}
	delete(h.active, userID)
}

// Publish sends d to every session of userID except originSession. An empty
// originSession excludes nothing.
func (h *Hub) Publish(userID, originSession string, d *tracker.Dashboard) {
	data, err := json.Marshal(estimateMessage(d))
	if err != nil {
		slog.Error("Failed to encode live update", "error", err, "user_id", userID)
		return
	}

	h.mu.RLock()
	targets := make(map[string]Conn, len(h.active[userID]))
	for sid, conn := range h.active[userID] {
		if originSession == "" || sid != originSession {
			targets[sid] = conn
		}
	}
	h.mu.RUnlock()

	for sid, conn := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("Live push failed", "error", err, "user_id", userID, "session_id", sid)
		}
		cancel()
	}
}
