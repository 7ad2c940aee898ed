package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agora/internal/config"
	"github.com/agora/internal/logger"
	"github.com/agora/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("invalid or expired token")
	// ErrTokenReuse marks a refresh token replayed after rotation; every
	// session of the user is revoked when this comes back.
	ErrTokenReuse = errors.New("refresh token reuse detected")
)

// Token purposes. A token minted for one purpose never validates as another.
const (
	PurposeAccess  = "access"
	PurposeRefresh = "refresh"
	PurposeVerify  = "verify"
	PurposeReset   = "reset"
)

type claims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenService signs and validates JWTs and tracks refresh-token state in
// the token store for rotation and reuse detection.
type TokenService struct {
	cfg   config.JWTConfig
	store storage.TokenStore
}

func NewTokenService(cfg config.JWTConfig, store storage.TokenStore) *TokenService {
	return &TokenService{cfg: cfg, store: store}
}

func (s *TokenService) sign(userID, purpose string, ttl time.Duration) (token, tokenID string, err error) {
	tokenID = uuid.New().String()
	now := time.Now()
	c := claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", "", fmt.Errorf("tokenService.sign: %w", err)
	}
	return token, tokenID, nil
}

func (s *TokenService) parse(token, purpose string) (*claims, error) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil || !parsed.Valid || c.Purpose != purpose || c.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return c, nil
}

// IssueAccess mints a short-lived access token.
func (s *TokenService) IssueAccess(userID string) (string, error) {
	token, _, err := s.sign(userID, PurposeAccess, s.cfg.AccessTTL)
	return token, err
}

// IssueRefresh mints a refresh token and registers it as active.
func (s *TokenService) IssueRefresh(ctx context.Context, userID string) (string, error) {
	token, tokenID, err := s.sign(userID, PurposeRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return "", err
	}
	if err := s.store.SaveRefreshToken(ctx, userID, tokenID); err != nil {
		return "", fmt.Errorf("tokenService.IssueRefresh: %w", err)
	}
	return token, nil
}

// IssueVerify mints an email-verification token (refresh TTL: the link may
// sit in an inbox for days).
func (s *TokenService) IssueVerify(userID string) (string, error) {
	token, _, err := s.sign(userID, PurposeVerify, s.cfg.RefreshTTL)
	return token, err
}

// IssueReset mints a short-lived password-reset token.
func (s *TokenService) IssueReset(userID string) (string, error) {
	token, _, err := s.sign(userID, PurposeReset, s.cfg.ResetTTL)
	return token, err
}

// VerifyAccess returns the user id carried by a valid access token.
func (s *TokenService) VerifyAccess(token string) (string, error) {
	c, err := s.parse(token, PurposeAccess)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// VerifyPurpose validates a verify/reset token and returns the user id.
func (s *TokenService) VerifyPurpose(token, purpose string) (string, error) {
	c, err := s.parse(token, purpose)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// Rotate exchanges a refresh token for a fresh access+refresh pair. A token
// that was already rotated out revokes the whole user session set.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	c, err := s.parse(refreshToken, PurposeRefresh)
	if err != nil {
		return "", "", err
	}
	userID := c.Subject
	used, err := s.store.TokenUsed(ctx, c.ID)
	if err != nil {
		return "", "", fmt.Errorf("tokenService.Rotate: %w", err)
	}
	if used {
		logger.Errorf("token reuse for user %s, revoking all sessions", userID)
		if err := s.store.RevokeUserTokens(ctx, userID); err != nil {
			logger.Errorf("revoke tokens for %s: %v", userID, err)
		}
		return "", "", ErrTokenReuse
	}
	valid, err := s.store.RefreshTokenValid(ctx, userID, c.ID)
	if err != nil {
		return "", "", fmt.Errorf("tokenService.Rotate: %w", err)
	}
	if !valid {
		return "", "", ErrTokenInvalid
	}
	if err := s.store.DeleteRefreshToken(ctx, userID, c.ID); err != nil {
		return "", "", fmt.Errorf("tokenService.Rotate retire: %w", err)
	}
	if err := s.store.MarkTokenUsed(ctx, c.ID); err != nil {
		return "", "", fmt.Errorf("tokenService.Rotate mark: %w", err)
	}
	access, err = s.IssueAccess(userID)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.IssueRefresh(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Logout retires one refresh token.
func (s *TokenService) Logout(ctx context.Context, refreshToken string) error {
	c, err := s.parse(refreshToken, PurposeRefresh)
	if err != nil {
		return err
	}
	return s.store.DeleteRefreshToken(ctx, c.Subject, c.ID)
}
