package realtime

import (
	"time"

	"github.com/agora/internal/model"
)

// Events pushed through the relay. A user's personal channel is their user
// id; a conversation's broadcast channel is the conversation id.
const (
	EventConversationNew    = "conversation:new"
	EventConversationUpdate = "conversation:update"
	EventMessageNew         = "message:new"
	EventMessageUpdate      = "message:update"
	EventMessageTyping      = "message:typing"
	EventFriendRequest      = "friend:request"
)

// ConversationTag qualifies a conversation:update event.
type ConversationTag string

const (
	TagSeen                ConversationTag = "seen"
	TagNewMessage          ConversationTag = "new-message"
	TagUpdateThumb         ConversationTag = "update-thumb"
	TagUpdateInfo          ConversationTag = "update-info"
	TagAddMembers          ConversationTag = "add-members"
	TagRemoveMembers       ConversationTag = "remove-members"
	TagLeaveConversation   ConversationTag = "leave-conversation"
	TagIsLeaveConversation ConversationTag = "is-leave-conversation"
	TagUpdateAdmins        ConversationTag = "update-admins"
)

// FriendTag qualifies a friend:request event.
type FriendTag string

const (
	TagAddFriend           FriendTag = "add-friend"
	TagAcceptFriendRequest FriendTag = "accept-friend-request"
	TagRemoveFriend        FriendTag = "remove-friend"
	TagCancelFriendRequest FriendTag = "cancel-friend-request"
)

// --- Typed payloads (avoid map[string]any on the hot path) ---

// ConversationUpdatePayload is pushed on the conversation's broadcast channel
// and, for membership changes, on affected users' personal channels.
type ConversationUpdatePayload struct {
	Tag            ConversationTag `json:"tag"`
	ConversationID string          `json:"conversation_id"`
	Conversation   any             `json:"conversation,omitempty"`
	Message        *model.Message  `json:"message,omitempty"`
	UserIDs        []string        `json:"user_ids,omitempty"`
	Seen           *model.Message  `json:"seen,omitempty"`
}

// NewMessagePayload is pushed on the conversation's broadcast channel.
type NewMessagePayload struct {
	ConversationID string        `json:"conversation_id"`
	Message        model.Message `json:"message"`
}

// TypingPayload carries a transient typing notification; nothing persists.
type TypingPayload struct {
	ConversationID string           `json:"conversation_id"`
	User           model.UserPublic `json:"user"`
	IsTyping       bool             `json:"is_typing"`
	At             time.Time        `json:"at"`
}

// FriendRequestPayload is pushed on the personal channel of the other side.
type FriendRequestPayload struct {
	Tag    FriendTag        `json:"tag"`
	Sender model.UserPublic `json:"sender"`
}
