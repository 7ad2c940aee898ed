package memory

import (
	"context"
	"sync"
	"time"
)

const (
	refreshTokenTTL     = 7 * 24 * time.Hour
	usedTokenTTL        = 7 * 24 * time.Hour
	mailRateLimitWindow = 600 * time.Second
	mailRateLimitMax    = 10
)

type item struct {
	exp time.Time
}

type Client struct {
	mu      sync.RWMutex
	refresh map[string]map[string]item
	used    map[string]item
	limit   map[string][]time.Time
}

func New() *Client {
	return &Client{
		refresh: make(map[string]map[string]item),
		used:    make(map[string]item),
		limit:   make(map[string][]time.Time),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SaveRefreshToken(ctx context.Context, userID, tokenID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.refresh[userID]
	if !ok {
		set = make(map[string]item)
		c.refresh[userID] = set
	}
	set[tokenID] = item{exp: time.Now().Add(refreshTokenTTL)}
	return nil
}

func (c *Client) RefreshTokenValid(ctx context.Context, userID, tokenID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.refresh[userID][tokenID]
	if !ok || time.Now().After(v.exp) {
		return false, nil
	}
	return true, nil
}

func (c *Client) DeleteRefreshToken(ctx context.Context, userID, tokenID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.refresh[userID], tokenID)
	return nil
}

func (c *Client) RevokeUserTokens(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.refresh, userID)
	return nil
}

func (c *Client) MarkTokenUsed(ctx context.Context, tokenID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used[tokenID] = item{exp: time.Now().Add(usedTokenTTL)}
	return nil
}

func (c *Client) TokenUsed(ctx context.Context, tokenID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.used[tokenID]
	if !ok || time.Now().After(v.exp) {
		return false, nil
	}
	return true, nil
}

func (c *Client) CheckRateLimit(ctx context.Context, email string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	cut := now.Add(-mailRateLimitWindow)
	var kept []time.Time
	for _, t := range c.limit[email] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= mailRateLimitMax {
		return false, nil
	}
	kept = append(kept, now)
	c.limit[email] = kept
	return true, nil
}
