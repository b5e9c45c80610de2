package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveCORS(origins []string, method, origin string) (*httptest.ResponseRecorder, bool) {
	reached := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(method, "/api/estimate", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, reached
}

func TestCORSWildcard(t *testing.T) {
	w, reached := serveCORS([]string{"*"}, http.MethodGet, "http://example.test")
	assert.True(t, reached)
	assert.Equal(t, "http://example.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSExplicitOriginAllowsCredentials(t *testing.T) {
	w, _ := serveCORS([]string{"https://eco.example"}, http.MethodGet, "https://eco.example")
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSRejectsOtherOrigin(t *testing.T) {
	w, reached := serveCORS([]string{"https://eco.example"}, http.MethodGet, "https://evil.example")
	assert.True(t, reached)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	w, reached := serveCORS([]string{"*"}, http.MethodOptions, "http://example.test")
	assert.False(t, reached)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAllowedOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, AllowedOrigins("", false))
	assert.Equal(t, []string{"*"}, AllowedOrigins("http://localhost:5173", true))
	assert.Equal(t, []string{"https://eco.example"}, AllowedOrigins("https://eco.example/", false))
}
