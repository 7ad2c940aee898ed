// Package media talks to the external media store over HTTP. Uploads return
// public URLs; deletes are best-effort.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/agora/internal/logger"
)

var ErrNotConfigured = errors.New("media service not configured")

// Client calls the media store. Empty URL disables uploads.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		return &Client{}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Enabled reports whether a media store is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload streams one file into the given category (avatar, thumb, message)
// and returns its public URL.
func (c *Client) Upload(ctx context.Context, category, filename string, r io.Reader) (string, error) {
	if c.baseURL == "" {
		return "", ErrNotConfigured
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("media upload form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("media upload copy: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("media upload close: %w", err)
	}
	url := c.baseURL + "/api/upload/" + category
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("media upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("media upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("media upload: status %d", resp.StatusCode)
	}
	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("media upload decode: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("media upload: empty url")
	}
	return out.URL, nil
}

// Delete removes a previously uploaded file by its public URL. Failures are
// logged only: a dangling file must not fail the request that replaced it.
func (c *Client) Delete(ctx context.Context, fileURL string) {
	if c.baseURL == "" || fileURL == "" {
		return
	}
	body, _ := json.Marshal(map[string]string{"url": fileURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/files", bytes.NewReader(body))
	if err != nil {
		logger.Errorf("media delete request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Errorf("media delete: %v", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		logger.Errorf("media delete: status %d", resp.StatusCode)
	}
}
