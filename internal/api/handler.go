// Package api provides HTTP handlers for the ecotrace API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/containerd/errdefs"
	"github.com/containerd/errdefs/pkg/errhttp"

	"github.com/ashureev/ecotrace/internal/identity"
	"github.com/ashureev/ecotrace/internal/store"
	"github.com/ashureev/ecotrace/internal/tracker"
)

const maxBodyBytes = 64 << 10

// Handler provides common handler utilities.
type Handler struct {
	repo   store.Repository
	svc    *tracker.Service
	tokens *identity.TokenIssuer
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, svc *tracker.Service, tokens *identity.TokenIssuer) *Handler {
	return &Handler{
		repo:   repo,
		svc:    svc,
		tokens: tokens,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// WriteError writes err with the status of its errdefs class. Internal
// errors are logged and replaced with a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := errhttp.ToHTTP(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err, "path", r.URL.Path,
			"user_id", identity.UserIDFromContext(r.Context()))
		Error(w, status, "internal error")
		return
	}
	Error(w, status, err.Error())
}

// decodeJSON reads a single JSON value from the request body into v.
func decodeJSON(r *http.Request, v any, disallowUnknown bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if disallowUnknown {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty: %w", errdefs.ErrInvalidArgument)
		}
		return fmt.Errorf("invalid request body: %v: %w", err, errdefs.ErrInvalidArgument)
	}
	return nil
}
