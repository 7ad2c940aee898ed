package model

import "time"

type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

type Conversation struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	IsGroup       bool      `json:"is_group"`
	Thumb         string    `json:"thumb"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// ConversationMember is one membership row. The visibility window (Hidden,
// HiddenAt) lives here: a user who soft-left stops seeing history created
// before HiddenAt until a new message arrives.
type ConversationMember struct {
	ConversationID string     `json:"conversation_id"`
	UserID         string     `json:"user_id"`
	Role           MemberRole `json:"role"`
	Hidden         bool       `json:"hidden"`
	HiddenAt       *time.Time `json:"hidden_at,omitempty"`
	JoinedAt       time.Time  `json:"joined_at"`
}

// Window returns the member's visibility window.
func (m *ConversationMember) Window() VisibilityWindow {
	w := VisibilityWindow{Active: m.Hidden}
	if m.HiddenAt != nil {
		w.Since = *m.HiddenAt
	}
	return w
}

// ConversationView is a conversation populated for the client: members with
// basic profiles, admin ids, the latest messages (visibility-filtered for the
// requesting user).
type ConversationView struct {
	Conversation
	Members  []UserPublic `json:"members"`
	AdminIDs []string     `json:"admins"`
	Messages []Message    `json:"messages"`
}
