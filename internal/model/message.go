package model

import "time"

type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeImage MessageType = "IMAGE"
	MessageTypeFile  MessageType = "FILE"

	// System messages recording membership/metadata changes. Generated
	// server-side; never authored by a user directly.
	MessageTypeAddMember   MessageType = "ADD_MEMBER"
	MessageTypeRmMember    MessageType = "RM_MEMBER"
	MessageTypeUpdateInfo  MessageType = "UP_INFO"
	MessageTypeUpdateThumb MessageType = "UP_THUMB"
	MessageTypeAddAdmin    MessageType = "ADD_ADMIN"
	MessageTypeLeave       MessageType = "UP_LEAVE"
)

// IsSystem reports whether t marks a server-generated update message.
func (t MessageType) IsSystem() bool {
	switch t {
	case MessageTypeAddMember, MessageTypeRmMember, MessageTypeUpdateInfo,
		MessageTypeUpdateThumb, MessageTypeAddAdmin, MessageTypeLeave:
		return true
	}
	return false
}

type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	Content        string       `json:"content"`
	Images         []string     `json:"images"`
	Type           MessageType  `json:"type"`
	CreatedAt      time.Time    `json:"created_at"`
	Sender         *UserPublic  `json:"sender,omitempty"`
	SeenUsers      []UserPublic `json:"seen_users"`
}

// MessageImage is one extracted image entry for the conversation gallery.
type MessageImage struct {
	MessageID string      `json:"message_id"`
	Sender    *UserPublic `json:"sender,omitempty"`
	Image     string      `json:"image"`
	CreatedAt time.Time   `json:"created_at"`
}

// MessageLink is one URL extracted from message content.
type MessageLink struct {
	MessageID string      `json:"message_id"`
	Sender    *UserPublic `json:"sender,omitempty"`
	Link      string      `json:"link"`
	CreatedAt time.Time   `json:"created_at"`
}

// SearchResult wraps a content search. Anchor-based paging around hits is
// deliberately not implemented; callers get the full match set newest-first.
type SearchResult struct {
	Result []Message `json:"result"`
	Total  int       `json:"total"`
}
