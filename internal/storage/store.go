package storage

import "context"

// TokenStore keeps refresh-token state and auth rate limits.
// Implementations: redis.Client, memory.Client (for -dev without Redis).
type TokenStore interface {
	// SaveRefreshToken registers tokenID as an active refresh token of userID.
	SaveRefreshToken(ctx context.Context, userID, tokenID string) error
	// RefreshTokenValid reports whether tokenID is an active token of userID.
	RefreshTokenValid(ctx context.Context, userID, tokenID string) (bool, error)
	// DeleteRefreshToken retires tokenID (logout or rotation).
	DeleteRefreshToken(ctx context.Context, userID, tokenID string) error
	// RevokeUserTokens drops every active token of userID (reuse detected).
	RevokeUserTokens(ctx context.Context, userID string) error
	// MarkTokenUsed records a rotated-out tokenID for reuse detection.
	MarkTokenUsed(ctx context.Context, tokenID string) error
	// TokenUsed reports whether tokenID was already rotated out.
	TokenUsed(ctx context.Context, tokenID string) (bool, error)
	// CheckRateLimit limits mail-sending endpoints per email.
	CheckRateLimit(ctx context.Context, email string) (allowed bool, err error)
	Close() error
}
