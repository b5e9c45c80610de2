package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/ecotrace/internal/domain"
	"github.com/ashureev/ecotrace/internal/identity"
	"github.com/ashureev/ecotrace/internal/store"
	"github.com/ashureev/ecotrace/internal/tracker"
)

// Message types exchanged on the live channel.
const (
	TypeEstimate = "estimate"
	TypeSave     = "save"
	TypePing     = "ping"
	TypePong     = "pong"
	TypeError    = "error"
)

// defaultTouchInterval bounds how often an open connection refreshes the
// owner's last-seen time.
const defaultTouchInterval = time.Minute

// Handler serves the live channel.
type Handler struct {
	repo          store.Repository
	svc           *tracker.Service
	hub           *Hub
	allowedOrigin string
	isDev         bool
	touchEvery    time.Duration
}

// NewHandler creates a live channel handler.
func NewHandler(repo store.Repository, svc *tracker.Service, hub *Hub, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		repo:          repo,
		svc:           svc,
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		touchEvery:    defaultTouchInterval,
	}
}

type clientMessage struct {
	Type       string         `json:"type"`
	Activities map[string]any `json:"activities,omitempty"`
}

type serverMessage struct {
	Type string `json:"type"`
	*tracker.Dashboard
	Error string `json:"error,omitempty"`
}

func estimateMessage(d *tracker.Dashboard) serverMessage {
	return serverMessage{Type: TypeEstimate, Dashboard: d}
}

// ServeHTTP upgrades the request and runs the session until either side closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("Live connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if userID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	// A connection without a named session still needs its own hub slot so
	// saves made elsewhere reach it and sibling tabs do not replace it.
	if sessionID == "" {
		sessionID = "anon-" + uuid.NewString()
	}

	h.hub.Register(userID, sessionID, ws)
	defer h.hub.Unregister(userID, sessionID, ws)
	slog.Debug("Live sessions open", "user_id", userID, "sessions", h.hub.Count(userID))

	ctx := r.Context()
	lastTouch := time.Now()

	// Start the session with the stored dashboard.
	if d, err := h.svc.Dashboard(ctx, "live", userID); err != nil {
		slog.Warn("Failed to load dashboard", "error", err, "user_id", userID)
	} else if err := writeJSON(ctx, ws, estimateMessage(d)); err != nil {
		return
	}

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Debug("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		reply := h.handleMessage(ctx, userID, sessionID, data)
		if err := writeJSON(ctx, ws, reply); err != nil {
			slog.Debug("Failed to write live reply", "error", err, "user_id", userID)
			return
		}

		if now := time.Now(); now.Sub(lastTouch) >= h.touchEvery {
			lastTouch = now
			go h.touch(userID)
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, userID, sessionID string, data []byte) serverMessage {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return serverMessage{Type: TypeError, Error: "invalid message"}
	}

	switch msg.Type {
	case TypePing:
		return serverMessage{Type: TypePong}
	case TypeEstimate, TypeSave:
		a, err := domain.ActivitiesFromValues(msg.Activities)
		if err != nil {
			return serverMessage{Type: TypeError, Error: err.Error()}
		}
		if msg.Type == TypeEstimate {
			return estimateMessage(h.svc.Estimate("live", a))
		}
		d, err := h.svc.Replace(ctx, userID, sessionID, a)
		if err != nil {
			slog.Error("Failed to save activities", "error", err, "user_id", userID)
			return serverMessage{Type: TypeError, Error: "failed to save activities"}
		}
		return estimateMessage(d)
	default:
		return serverMessage{Type: TypeError, Error: "unknown message type"}
	}
}

func (h *Handler) touch(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := identity.EnsureUser(ctx, h.repo, userID); err != nil {
		slog.Warn("Failed to update last seen", "error", err, "user_id", userID)
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
