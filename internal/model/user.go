package model

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Status string

const (
	StatusNotVerified Status = "not_verified"
	StatusActive      Status = "active"
	StatusBlocked     Status = "blocked"
)

type AccountType string

const (
	AccountTypeLocal    AccountType = "local"
	AccountTypeGoogle   AccountType = "google"
	AccountTypeFacebook AccountType = "facebook"
)

type User struct {
	ID           string      `json:"id"`
	FirstName    string      `json:"first_name"`
	LastName     string      `json:"last_name"`
	DisplayName  string      `json:"display_name"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Avatar       string      `json:"avatar"`
	Status       Status      `json:"status"`
	Role         Role        `json:"role"`
	AccountType  AccountType `json:"account_type"`
	CreatedAt    time.Time   `json:"created_at"`
}

// UserPublic is the basic profile returned when populating references.
// Sensitive fields (password hash, status) never leave through it.
type UserPublic struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Avatar      string `json:"avatar"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Avatar:      u.Avatar,
	}
}

// FriendRequest is a pending request as seen by its receiver.
type FriendRequest struct {
	Sender    UserPublic `json:"sender"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}

// SentRequest is the same pending request as seen by its sender.
type SentRequest struct {
	Receiver  UserPublic `json:"receiver"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}

// Stranger is a non-friend user shown in people discovery, annotated with
// whether the current user already has a request pending toward them and the
// friends both sides share.
type Stranger struct {
	UserPublic
	IsWaitingAccept bool         `json:"is_waiting_accept"`
	MutualFriends   []UserPublic `json:"mutual_friends"`
}

// Profile is the full "me" view: user plus relationship state.
type Profile struct {
	User           User            `json:"user"`
	Friends        []UserPublic    `json:"friends"`
	FriendRequests []FriendRequest `json:"friend_requests"`
	SentRequests   []SentRequest   `json:"sent_requests"`
	Strangers      []Stranger      `json:"strangers"`
}
