package api

import (
	"bytes"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/ecotrace/internal/config"
	"github.com/ashureev/ecotrace/internal/footprint"
	"github.com/ashureev/ecotrace/internal/identity"
	"github.com/ashureev/ecotrace/internal/store"
	"github.com/ashureev/ecotrace/internal/tracker"
)

type apiClient struct {
	t      *testing.T
	router http.Handler
	cookie *http.Cookie
	bearer string
}

func newAPIClient(t *testing.T) *apiClient {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	svc := tracker.NewService(repo, footprint.NewEngine(rand.NewPCG(3, 4)), config.RetryConfig{
		DatabaseMaxRetries:     3,
		DatabaseRetryBaseDelay: time.Millisecond,
	})
	tokens := identity.NewTokenIssuer(config.TokenConfig{Secret: "test-secret", Issuer: "ecotrace", TTL: time.Hour})

	r := chi.NewRouter()
	r.Use(identity.Middleware(repo, tokens, true))
	NewHealthHandler(repo, nil).RegisterHealth(r)
	NewActivityHandler(NewHandler(repo, svc, tokens)).RegisterRoutes(r)

	return &apiClient{t: t, router: r}
}

func (c *apiClient) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(c.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	} else if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == identity.AnonCookieName {
			c.cookie = ck
		}
	}
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	return got
}

func TestHealth(t *testing.T) {
	c := newAPIClient(t)
	w := c.do(http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])
}

func TestGetMe(t *testing.T) {
	c := newAPIClient(t)
	w := c.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	require.NotNil(t, c.cookie)
	assert.Equal(t, c.cookie.Value, got["user_id"])
}

func TestGetOptions(t *testing.T) {
	c := newAPIClient(t)
	w := c.do(http.MethodGet, "/api/options", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	options := got["options"].(map[string]any)
	assert.Len(t, options["transport_method"], 6)
	assert.Len(t, got["fields"], 9)
}

func TestEstimate(t *testing.T) {
	c := newAPIClient(t)
	w := c.do(http.MethodPost, "/api/estimate", map[string]any{
		"transport_method":   "car_gas",
		"commute_distance":   20,
		"home_type":          "apartment",
		"heating_type":       "electric",
		"electricity_source": "mostly_renewable",
		"diet_type":          "vegan",
		"food_waste":         "low",
		"meal_ratio":         "mostly_home",
	})
	require.Equal(t, http.StatusOK, w.Code)

	got := decodeBody(t, w)
	em := got["emissions"].(map[string]any)
	assert.InDelta(t, 16.44, em["transport"], 1e-9)
	assert.InDelta(t, 6.0, em["energy"], 1e-9)
	assert.InDelta(t, 2.32, em["food"], 1e-9)
	assert.InDelta(t, 24.76, got["total"], 1e-9)
	assert.Len(t, got["breakdown"], 3)
	assert.NotContains(t, got, "tips")
}

func TestEstimateRejectsBadInput(t *testing.T) {
	c := newAPIClient(t)

	w := c.do(http.MethodPost, "/api/estimate", map[string]any{"shoe_size": "44"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPost, "/api/estimate", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPost, "/api/estimate", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTipsAndWeek(t *testing.T) {
	c := newAPIClient(t)
	em := map[string]float64{"transport": 50, "energy": 30, "food": 20}

	w := c.do(http.MethodPost, "/api/tips", em)
	require.Equal(t, http.StatusOK, w.Code)
	tips := decodeBody(t, w)["tips"].([]any)
	assert.NotEmpty(t, tips)
	assert.LessOrEqual(t, len(tips), footprint.MaxTips)

	w = c.do(http.MethodPost, "/api/tips", map[string]float64{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w)["tips"])

	w = c.do(http.MethodPost, "/api/week", em)
	require.Equal(t, http.StatusOK, w.Code)
	week := decodeBody(t, w)["week"].([]any)
	require.Len(t, week, 7)
	assert.Equal(t, "Mon", week[0].(map[string]any)["day"])

	w = c.do(http.MethodPost, "/api/week", map[string]any{"water": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActivitiesLifecycle(t *testing.T) {
	c := newAPIClient(t)

	w := c.do(http.MethodGet, "/api/activities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	assert.Empty(t, got["activities"])
	assert.NotContains(t, got, "updated_at")

	w = c.do(http.MethodPut, "/api/activities", map[string]string{"diet_type": "vegan", "food_waste": "low"})
	require.Equal(t, http.StatusOK, w.Code)

	w = c.do(http.MethodPatch, "/api/activities", map[string]string{"meal_ratio": "mostly_home"})
	require.Equal(t, http.StatusOK, w.Code)
	dash := decodeBody(t, w)
	assert.InDelta(t, 2.32, dash["emissions"].(map[string]any)["food"], 1e-9)
	assert.Contains(t, dash, "tips")

	w = c.do(http.MethodPatch, "/api/activities", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dash = decodeBody(t, w)
	assert.Equal(t, "vegan", dash["activities"].(map[string]any)["diet_type"])
	assert.Contains(t, dash, "updated_at")

	w = c.do(http.MethodGet, "/api/insights", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["week"], 7)

	w = c.do(http.MethodDelete, "/api/activities", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = c.do(http.MethodDelete, "/api/activities", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatchNullClearsField(t *testing.T) {
	c := newAPIClient(t)

	w := c.do(http.MethodPut, "/api/activities", map[string]string{"diet_type": "vegan", "home_type": "apartment"})
	require.Equal(t, http.StatusOK, w.Code)

	w = c.do(http.MethodPatch, "/api/activities", map[string]any{"diet_type": nil})
	require.Equal(t, http.StatusOK, w.Code)

	w = c.do(http.MethodGet, "/api/activities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stored := decodeBody(t, w)["activities"].(map[string]any)
	assert.NotContains(t, stored, "diet_type")
	assert.Equal(t, "apartment", stored["home_type"])

	w = c.do(http.MethodPatch, "/api/activities", map[string]any{"shoe_size": nil})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistory(t *testing.T) {
	c := newAPIClient(t)

	w := c.do(http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w)["history"])

	for _, q := range []string{"0", "366", "-3", "week"} {
		w = c.do(http.MethodGet, "/api/history?days="+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "days=%s", q)
	}
}

func TestTokenAuthenticatesSameUser(t *testing.T) {
	c := newAPIClient(t)

	w := c.do(http.MethodPut, "/api/activities", map[string]string{"transport_method": "cycling"})
	require.Equal(t, http.StatusOK, w.Code)
	userID := c.cookie.Value

	w = c.do(http.MethodPost, "/api/token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	assert.Equal(t, "Bearer", got["token_type"])
	token := got["token"].(string)

	bearer := &apiClient{t: t, router: c.router, bearer: token}
	w = bearer.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID, decodeBody(t, w)["user_id"])

	w = bearer.do(http.MethodGet, "/api/activities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cycling", decodeBody(t, w)["activities"].(map[string]any)["transport_method"])

	bad := &apiClient{t: t, router: c.router, bearer: "not-a-token"}
	w = bad.do(http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
