package relayserver

import "encoding/json"

type FrameType string

const (
	FrameSubscribe    FrameType = "subscribe"
	FrameUnsubscribe  FrameType = "unsubscribe"
	FramePing         FrameType = "ping"
	FramePong         FrameType = "pong"
	FrameEstablished  FrameType = "connection_established"
	FrameSubscribed   FrameType = "subscription_succeeded"
	FrameUnsubscribed FrameType = "unsubscribed"
	FrameEvent        FrameType = "event"
	FrameError        FrameType = "error"
)

// IncomingFrame is what a subscriber sends over the socket. Auth carries the
// channel-authorization grant issued by the API for this socket.
type IncomingFrame struct {
	Type    FrameType `json:"type"`
	Channel string    `json:"channel,omitempty"`
	Auth    string    `json:"auth,omitempty"`
}

// OutgoingFrame is what the relay sends to a subscriber. Data is the
// pre-serialized event payload, forwarded verbatim.
type OutgoingFrame struct {
	Type     FrameType       `json:"type"`
	Channel  string          `json:"channel,omitempty"`
	Event    string          `json:"event,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	SocketID string          `json:"socket_id,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// TriggerRequest is the HTTP API body for publishing one event.
type TriggerRequest struct {
	Name    string `json:"name"`
	Channel string `json:"channel"`
	Data    string `json:"data"`
}
