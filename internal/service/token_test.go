package service

import (
	"context"
	"testing"
	"time"

	"github.com/agora/internal/config"
	"github.com/agora/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenService() *TokenService {
	cfg := config.JWTConfig{
		Secret:     "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ResetTTL:   30 * time.Minute,
	}
	return NewTokenService(cfg, memory.New())
}

func TestAccessTokenRoundTrip(t *testing.T) {
	s := newTokenService()

	token, err := s.IssueAccess("user-1")
	require.NoError(t, err)

	userID, err := s.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestAccessTokenWrongSecret(t *testing.T) {
	s := newTokenService()
	other := NewTokenService(config.JWTConfig{Secret: "other-secret", AccessTTL: time.Minute}, memory.New())

	token, err := other.IssueAccess("user-1")
	require.NoError(t, err)

	_, err = s.VerifyAccess(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestPurposeIsolation(t *testing.T) {
	s := newTokenService()

	refresh, err := s.IssueRefresh(context.Background(), "user-1")
	require.NoError(t, err)

	// A refresh token must never pass as access, verify or reset.
	_, err = s.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = s.VerifyPurpose(refresh, PurposeVerify)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = s.VerifyPurpose(refresh, PurposeReset)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	reset, err := s.IssueReset("user-1")
	require.NoError(t, err)
	userID, err := s.VerifyPurpose(reset, PurposeReset)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestRotate(t *testing.T) {
	s := newTokenService()
	ctx := context.Background()

	refresh, err := s.IssueRefresh(ctx, "user-1")
	require.NoError(t, err)

	access2, refresh2, err := s.Rotate(ctx, refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, access2)
	assert.NotEmpty(t, refresh2)

	userID, err := s.VerifyAccess(access2)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	// The new refresh token rotates again.
	_, _, err = s.Rotate(ctx, refresh2)
	require.NoError(t, err)
}

func TestRotateReuseRevokesAllSessions(t *testing.T) {
	s := newTokenService()
	ctx := context.Background()

	refresh, err := s.IssueRefresh(ctx, "user-1")
	require.NoError(t, err)

	_, refresh2, err := s.Rotate(ctx, refresh)
	require.NoError(t, err)

	// Replaying the rotated-out token trips reuse detection.
	_, _, err = s.Rotate(ctx, refresh)
	assert.ErrorIs(t, err, ErrTokenReuse)

	// The revocation killed the live token too.
	_, _, err = s.Rotate(ctx, refresh2)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRotateUnknownToken(t *testing.T) {
	s := newTokenService()
	ctx := context.Background()

	// Signed correctly but never registered in the store (e.g. revoked).
	token, _, err := s.sign("user-1", PurposeRefresh, time.Hour)
	require.NoError(t, err)

	_, _, err = s.Rotate(ctx, token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestLogoutRetiresToken(t *testing.T) {
	s := newTokenService()
	ctx := context.Background()

	refresh, err := s.IssueRefresh(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx, refresh))

	_, _, err = s.Rotate(ctx, refresh)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
