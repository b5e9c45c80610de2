// Package identity provides anonymous per-device identity primitives and
// bearer tokens for clients that cannot hold the device cookie.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/containerd/errdefs"

	"github.com/ashureev/ecotrace/internal/domain"
	"github.com/ashureev/ecotrace/internal/store"
)

const (
	AnonCookieName     = "ecotrace_anon_id"
	SessionHeaderName  = "X-Ecotrace-Session-ID"
	anonCookieMaxAge   = 365 * 24 * time.Hour
	lastSeenResolution = time.Hour
)

type contextKey int

const (
	userIDKey contextKey = iota
	sessionIDKey
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the tab session ID from the request context.
// It is empty when the client named no session.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUser returns ctx carrying the given identity.
func WithUser(ctx context.Context, userID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, sessionIDKey, sanitizeSessionID(sessionID))
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if !sessionIDPattern.MatchString(id) {
		return ""
	}
	return id
}

func deriveUsername(userID string) string {
	if len(userID) > 13 {
		return "anon-" + userID[len(userID)-8:]
	}
	return "anon-user"
}

// EnsureUser creates the user row on first sight and refreshes last_seen_at
// at most once per lastSeenResolution.
func EnsureUser(ctx context.Context, repo store.Repository, userID string) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	now := time.Now()
	if user != nil {
		if now.Sub(user.LastSeenAt) < lastSeenResolution {
			return nil
		}
		return repo.UpdateLastSeen(ctx, userID, now)
	}

	return repo.UpsertUser(ctx, &domain.User{
		UserID:     userID,
		Username:   deriveUsername(userID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

// BearerToken returns the token of an "Authorization: Bearer" header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// Middleware injects the caller's identity and per-request session ID. A
// bearer token wins over the device cookie; an invalid token is rejected
// rather than falling back to a fresh anonymous identity.
func Middleware(repo store.Repository, tokens *TokenIssuer, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolveUser(w, r, repo, tokens, isDev)
			if err != nil {
				if errdefs.IsUnauthorized(err) {
					http.Error(w, `{"error":"invalid bearer token"}`, http.StatusUnauthorized)
					return
				}
				slog.Error("Failed to establish identity", "error", err)
				http.Error(w, `{"error":"failed to establish identity"}`, http.StatusInternalServerError)
				return
			}

			ctx := WithUser(r.Context(), userID, sessionIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveUser(w http.ResponseWriter, r *http.Request, repo store.Repository, tokens *TokenIssuer, isDev bool) (string, error) {
	if raw, ok := BearerToken(r.Header.Get("Authorization")); ok && tokens != nil {
		userID, err := tokens.Parse(raw)
		if err != nil {
			return "", err
		}
		user, err := repo.GetUser(r.Context(), userID)
		if err != nil {
			return "", err
		}
		if user == nil {
			return "", fmt.Errorf("token subject %s no longer exists: %w", userID, errdefs.ErrUnauthenticated)
		}
		return userID, EnsureUser(r.Context(), repo, userID)
	}

	userID, err := getOrCreateAnonID(w, r, isDev)
	if err != nil {
		return "", err
	}
	if err := EnsureUser(r.Context(), repo, userID); err != nil {
		return "", fmt.Errorf("initialize anonymous user: %w", err)
	}
	return userID, nil
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ErrNoIdentity is returned when a request carries no usable identity.
var ErrNoIdentity = fmt.Errorf("no identity: %w", errdefs.ErrUnauthenticated)

// RequireUser returns the user ID in ctx or ErrNoIdentity.
func RequireUser(ctx context.Context) (string, error) {
	if id := UserIDFromContext(ctx); id != "" {
		return id, nil
	}
	return "", ErrNoIdentity
}
