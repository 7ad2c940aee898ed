package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokenLifecycle(t *testing.T) {
	c := New()
	ctx := context.Background()

	valid, err := c.RefreshTokenValid(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.False(t, valid)

	require.NoError(t, c.SaveRefreshToken(ctx, "u1", "t1"))
	valid, err = c.RefreshTokenValid(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.True(t, valid)

	require.NoError(t, c.DeleteRefreshToken(ctx, "u1", "t1"))
	valid, err = c.RefreshTokenValid(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestRevokeUserTokens(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.SaveRefreshToken(ctx, "u1", "t1"))
	require.NoError(t, c.SaveRefreshToken(ctx, "u1", "t2"))
	require.NoError(t, c.SaveRefreshToken(ctx, "u2", "t3"))

	require.NoError(t, c.RevokeUserTokens(ctx, "u1"))

	for _, id := range []string{"t1", "t2"} {
		valid, err := c.RefreshTokenValid(ctx, "u1", id)
		require.NoError(t, err)
		assert.False(t, valid, id)
	}
	// Other users are untouched.
	valid, err := c.RefreshTokenValid(ctx, "u2", "t3")
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestUsedTokens(t *testing.T) {
	c := New()
	ctx := context.Background()

	used, err := c.TokenUsed(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, c.MarkTokenUsed(ctx, "t1"))
	used, err = c.TokenUsed(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, used)
}

func TestMailRateLimit(t *testing.T) {
	c := New()
	ctx := context.Background()

	for i := 0; i < mailRateLimitMax; i++ {
		allowed, err := c.CheckRateLimit(ctx, "a@example.com")
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d", i)
	}
	allowed, err := c.CheckRateLimit(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Separate addresses have separate budgets.
	allowed, err = c.CheckRateLimit(ctx, "b@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)
}
