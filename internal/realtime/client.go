// Package realtime talks to the external pub/sub relay. Delivery is
// best-effort: failures are logged and swallowed, persistence never depends
// on the relay.
package realtime

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agora/internal/config"
	"github.com/agora/internal/logger"
)

// Client calls the relay's HTTP API. Empty URL makes every method a no-op.
type Client struct {
	baseURL    string
	appID      string
	key        string
	secret     string
	httpClient *http.Client
}

func NewClient(cfg config.RelayConfig) *Client {
	if cfg.URL == "" {
		return &Client{}
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		appID:   cfg.AppID,
		key:     cfg.Key,
		secret:  cfg.Secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether a relay is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

type triggerRequest struct {
	Name    string `json:"name"`
	Channel string `json:"channel"`
	Data    string `json:"data"`
}

// Trigger pushes one event to one channel. Errors are logged, never returned:
// callers fire after persistence and do not roll back on relay failure.
func (c *Client) Trigger(ctx context.Context, channel, event string, payload any) {
	if c.baseURL == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("relay trigger marshal %s: %v", event, err)
		return
	}
	body, _ := json.Marshal(triggerRequest{Name: event, Channel: channel, Data: string(data)})
	url := fmt.Sprintf("%s/apps/%s/events", c.baseURL, c.appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		logger.Errorf("relay trigger request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Relay-Key", c.key)
	req.Header.Set("X-Relay-Signature", c.signBody(body))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Errorf("relay trigger %s: %v", event, err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		logger.Errorf("relay trigger %s: status %d", event, resp.StatusCode)
	}
}

// AuthorizeChannel signs a private-channel subscription for a connected
// socket. The client presents the returned auth string to the relay.
func (c *Client) AuthorizeChannel(socketID, channel string) string {
	sig := c.sign(socketID + ":" + channel)
	return c.key + ":" + sig
}

func (c *Client) sign(s string) string {
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
