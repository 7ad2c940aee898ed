package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agora/internal/config"
	"github.com/agora/internal/service"
	"github.com/agora/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthStack(t *testing.T) (*service.TokenService, http.Handler, *string) {
	t.Helper()
	tokens := service.NewTokenService(config.JWTConfig{
		Secret:    "test-secret",
		AccessTTL: time.Minute,
	}, memory.New())

	var gotUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return tokens, Auth(tokens)(next), &gotUserID
}

func TestAuthPassesValidToken(t *testing.T) {
	tokens, h, gotUserID := newAuthStack(t)

	token, err := tokens.IssueAccess("user-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", *gotUserID)
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	_, h, _ := newAuthStack(t)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Missing access token"}`, w.Body.String())
}

func TestAuthRejectsMalformedToken(t *testing.T) {
	_, h, _ := newAuthStack(t)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Invalid or expired access token"}`, w.Body.String())
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	expired := service.NewTokenService(config.JWTConfig{
		Secret:    "test-secret",
		AccessTTL: -time.Minute,
	}, memory.New())
	_, h, _ := newAuthStack(t)

	token, err := expired.IssueAccess("user-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
