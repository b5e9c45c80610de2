package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/containerd/errdefs"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/ecotrace/internal/domain"
	"github.com/ashureev/ecotrace/internal/identity"
)

// ActivityHandler serves the estimator and activity profile endpoints.
type ActivityHandler struct {
	*Handler
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(base *Handler) *ActivityHandler {
	return &ActivityHandler{Handler: base}
}

// RegisterRoutes registers the estimator routes.
func (h *ActivityHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/options", h.GetOptions)
		r.Post("/estimate", h.Estimate)
		r.Post("/tips", h.Tips)
		r.Post("/week", h.Week)
		r.Get("/activities", h.GetActivities)
		r.Put("/activities", h.PutActivities)
		r.Patch("/activities", h.PatchActivities)
		r.Delete("/activities", h.DeleteActivities)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/insights", h.Insights)
		r.Get("/history", h.History)
		r.Post("/token", h.IssueToken)
	})
}

type activitiesResponse struct {
	Activities domain.Activities `json:"activities"`
	UpdatedAt  *time.Time        `json:"updated_at,omitempty"`
}

// GetMe returns the current user's information.
func (h *ActivityHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, err := identity.RequireUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      user.UserID,
		"username":     user.Username,
		"created_at":   user.CreatedAt,
		"last_seen_at": user.LastSeenAt,
	})
}

// GetOptions returns the selectable values of every categorical field.
func (h *ActivityHandler) GetOptions(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"fields":  domain.ActivityFields,
		"options": domain.Options,
	})
}

// Estimate computes emissions for the posted activities without storing them.
func (h *ActivityHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	a, err := decodeActivities(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, h.svc.Estimate("http", a).Summary())
}

// Tips selects reduction tips for the posted emissions.
func (h *ActivityHandler) Tips(w http.ResponseWriter, r *http.Request) {
	var em domain.Emissions
	if err := decodeJSON(r, &em, true); err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"tips": h.svc.Tips(em)})
}

// Week builds a synthetic week around the posted emissions.
func (h *ActivityHandler) Week(w http.ResponseWriter, r *http.Request) {
	var em domain.Emissions
	if err := decodeJSON(r, &em, true); err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"week": h.svc.Week(em)})
}

// GetActivities returns the stored activity record.
func (h *ActivityHandler) GetActivities(w http.ResponseWriter, r *http.Request) {
	userID, err := identity.RequireUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	profile, err := h.svc.Activities(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	resp := activitiesResponse{Activities: profile.Activities}
	if !profile.UpdatedAt.IsZero() {
		resp.UpdatedAt = &profile.UpdatedAt
	}
	JSON(w, http.StatusOK, resp)
}

// PutActivities replaces the stored activity record.
func (h *ActivityHandler) PutActivities(w http.ResponseWriter, r *http.Request) {
	userID, err := identity.RequireUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	a, err := decodeActivities(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	d, err := h.svc.Replace(r.Context(), userID, identity.SessionIDFromContext(r.Context()), a)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, d)
}

// PatchActivities merges the posted fields into the stored record. A null
// value clears its field.
func (h *ActivityHandler) PatchActivities(w http.ResponseWriter, r *http.Request) {
	userID, err := identity.RequireUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var raw map[string]any
	if err := decodeJSON(r, &raw, false); err != nil {
		WriteError(w, r, err)
		return
	}
	patch, err := domain.PatchFromValues(raw)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	d, err := h.svc.Patch(r.Context(), userID, identity.SessionIDFromContext(r.Context()), patch)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, d)
}

// DeleteActivities clears the stored record.
func (h *ActivityHandler) DeleteActivities(w http.ResponseWriter, r *http.Request) {
	userID, err := identity.RequireUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if err := h.svc.Clear(r.Context(), userID, identity.SessionIDFromContext(r.Context())); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dashboard returns the estimate and tips for the stored record.
func (h *ActivityHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := identity.RequireUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	d, err := h.svc.Dashboard(r.Context(), "http", userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, d)
}

// Insights returns the breakdown and synthetic week for the stored record.
func (h *ActivityHandler) Insights(w http.ResponseWriter, r *http.Request) {
	userID, err := identity.RequireUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	ins, err := h.svc.Insights(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, ins)
}

// History returns recorded daily snapshots, oldest first.
func (h *ActivityHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := identity.RequireUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil {
			WriteError(w, r, fmt.Errorf("days must be an integer: %w", errdefs.ErrInvalidArgument))
			return
		}
		if days == 0 {
			WriteError(w, r, fmt.Errorf("days must be positive: %w", errdefs.ErrInvalidArgument))
			return
		}
	}

	snaps, err := h.svc.History(r.Context(), userID, days)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"history": snaps})
}

// IssueToken returns a bearer token bound to the caller's user id.
func (h *ActivityHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	userID, err := identity.RequireUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	token, expiresAt, err := h.tokens.Issue(userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expiresAt,
	})
}

func decodeActivities(r *http.Request) (domain.Activities, error) {
	var raw map[string]any
	if err := decodeJSON(r, &raw, false); err != nil {
		return domain.Activities{}, err
	}
	return domain.ActivitiesFromValues(raw)
}
