package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Refresh tokens live 7 days (matching the JWT refresh TTL); used-token marks
// stay the same window so a replay inside the window is always detected.
// Mail rate limit: 10 requests / 10 minutes per email.
const (
	RefreshTokenTTL     = 7 * 24 * time.Hour
	UsedTokenTTL        = 7 * 24 * time.Hour
	MailRateLimitWindow = 600 * time.Second
	MailRateLimitMax    = 10
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// SaveRefreshToken adds tokenID to the user's active set and refreshes the
// set TTL, so the whole set dies with the last live token.
func (c *Client) SaveRefreshToken(ctx context.Context, userID, tokenID string) error {
	key := "refresh:" + userID
	if err := c.cli.SAdd(ctx, key, tokenID).Err(); err != nil {
		return err
	}
	return c.cli.Expire(ctx, key, RefreshTokenTTL).Err()
}

func (c *Client) RefreshTokenValid(ctx context.Context, userID, tokenID string) (bool, error) {
	return c.cli.SIsMember(ctx, "refresh:"+userID, tokenID).Result()
}

func (c *Client) DeleteRefreshToken(ctx context.Context, userID, tokenID string) error {
	return c.cli.SRem(ctx, "refresh:"+userID, tokenID).Err()
}

// RevokeUserTokens wipes the active set; every outstanding refresh token of
// the user stops working and a fresh login is required.
func (c *Client) RevokeUserTokens(ctx context.Context, userID string) error {
	return c.cli.Del(ctx, "refresh:"+userID).Err()
}

func (c *Client) MarkTokenUsed(ctx context.Context, tokenID string) error {
	return c.cli.Set(ctx, "used_token:"+tokenID, "1", UsedTokenTTL).Err()
}

func (c *Client) TokenUsed(ctx context.Context, tokenID string) (bool, error) {
	_, err := c.cli.Get(ctx, "used_token:"+tokenID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CheckRateLimit counts mail_limit:{email}: at most MailRateLimitMax sends per
// window. Exceeding it maps to HTTP 429 at the handler.
func (c *Client) CheckRateLimit(ctx context.Context, email string) (allowed bool, err error) {
	key := "mail_limit:" + email
	n, err := c.cli.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, key, MailRateLimitWindow)
	}
	return n <= int64(MailRateLimitMax), nil
}

// FlushDB clears the current Redis DB (token state and rate limits in tests).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
