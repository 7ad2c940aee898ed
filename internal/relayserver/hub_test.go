package relayserver

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-key"
	testSecret = "test-secret"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub("app1", testKey, testSecret, 100)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func grant(socketID, channel string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(socketID + ":" + channel))
	return testKey + ":" + hex.EncodeToString(mac.Sum(nil))
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) OutgoingFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame OutgoingFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestSubscribeAndPublish(t *testing.T) {
	hub := startHub(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/events", hub.ServeTrigger)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv)

	est := readFrame(t, conn)
	require.Equal(t, FrameEstablished, est.Type)
	require.NotEmpty(t, est.SocketID)

	require.NoError(t, conn.WriteJSON(IncomingFrame{
		Type:    FrameSubscribe,
		Channel: "conv-1",
		Auth:    grant(est.SocketID, "conv-1"),
	}))
	sub := readFrame(t, conn)
	require.Equal(t, FrameSubscribed, sub.Type)
	assert.Equal(t, "conv-1", sub.Channel)

	body, _ := json.Marshal(TriggerRequest{Name: "message:new", Channel: "conv-1", Data: `{"id":"m1"}`})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/events", bytes.NewReader(body))
	req.Header.Set("X-Relay-Key", testKey)
	req.Header.Set("X-Relay-Signature", signBody(body))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	event := readFrame(t, conn)
	assert.Equal(t, FrameEvent, event.Type)
	assert.Equal(t, "conv-1", event.Channel)
	assert.Equal(t, "message:new", event.Event)
	assert.JSONEq(t, `{"id":"m1"}`, string(event.Data))
}

func TestSubscribeDeniedWithoutGrant(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dial(t, srv)
	est := readFrame(t, conn)
	require.Equal(t, FrameEstablished, est.Type)

	// Grant minted for another channel must not open this one.
	require.NoError(t, conn.WriteJSON(IncomingFrame{
		Type:    FrameSubscribe,
		Channel: "conv-1",
		Auth:    grant(est.SocketID, "conv-2"),
	}))
	frame := readFrame(t, conn)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "subscription denied", frame.Message)
}

func TestTriggerRejectsBadSignature(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeTrigger))
	defer srv.Close()

	body, _ := json.Marshal(TriggerRequest{Name: "message:new", Channel: "conv-1", Data: `{}`})

	req, _ := http.NewRequest(http.MethodPost, srv.URL, bytes.NewReader(body))
	req.Header.Set("X-Relay-Key", testKey)
	req.Header.Set("X-Relay-Signature", "deadbeef")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong key with a correct signature fails too.
	req, _ = http.NewRequest(http.MethodPost, srv.URL, bytes.NewReader(body))
	req.Header.Set("X-Relay-Key", "wrong-key")
	req.Header.Set("X-Relay-Signature", signBody(body))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dial(t, srv)
	est := readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(IncomingFrame{
		Type:    FrameSubscribe,
		Channel: "conv-1",
		Auth:    grant(est.SocketID, "conv-1"),
	}))
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(IncomingFrame{Type: FrameUnsubscribe, Channel: "conv-1"}))
	frame := readFrame(t, conn)
	require.Equal(t, FrameUnsubscribed, frame.Type)

	hub.Publish("conv-1", "message:new", json.RawMessage(`{}`))

	// Nothing must arrive after unsubscribing.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var stray OutgoingFrame
	err := conn.ReadJSON(&stray)
	assert.Error(t, err)
}

func TestValidGrant(t *testing.T) {
	hub := NewHub("app1", testKey, testSecret, 10)

	assert.True(t, hub.validGrant("sock-1", "conv-1", grant("sock-1", "conv-1")))
	assert.False(t, hub.validGrant("sock-2", "conv-1", grant("sock-1", "conv-1")))
	assert.False(t, hub.validGrant("sock-1", "conv-1", ""))
}
