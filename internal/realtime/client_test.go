package realtime

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agora/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerSignsAndDelivers(t *testing.T) {
	type captured struct {
		path      string
		key       string
		signature string
		body      []byte
	}
	got := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- captured{
			path:      r.URL.Path,
			key:       r.Header.Get("X-Relay-Key"),
			signature: r.Header.Get("X-Relay-Signature"),
			body:      body,
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(config.RelayConfig{URL: srv.URL, AppID: "app1", Key: "k", Secret: "s"})
	c.Trigger(context.Background(), "conv-1", EventMessageNew, map[string]string{"id": "m1"})

	req := <-got
	assert.Equal(t, "/apps/app1/events", req.path)
	assert.Equal(t, "k", req.key)

	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write(req.body)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), req.signature)

	var tr struct {
		Name    string `json:"name"`
		Channel string `json:"channel"`
		Data    string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(req.body, &tr))
	assert.Equal(t, EventMessageNew, tr.Name)
	assert.Equal(t, "conv-1", tr.Channel)
	assert.JSONEq(t, `{"id":"m1"}`, tr.Data)
}

func TestTriggerDisabledClient(t *testing.T) {
	c := NewClient(config.RelayConfig{})
	assert.False(t, c.Enabled())
	// Must be a silent no-op.
	c.Trigger(context.Background(), "conv-1", EventMessageNew, nil)
}

func TestAuthorizeChannel(t *testing.T) {
	c := NewClient(config.RelayConfig{URL: "http://relay.local", AppID: "app1", Key: "k", Secret: "s"})

	auth := c.AuthorizeChannel("sock-1", "conv-1")

	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write([]byte("sock-1:conv-1"))
	assert.Equal(t, "k:"+hex.EncodeToString(mac.Sum(nil)), auth)

	// A different socket gets a different grant.
	assert.NotEqual(t, auth, c.AuthorizeChannel("sock-2", "conv-1"))
}
