package store

import "time"

// User is a registered chat user.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Avatar       string    `json:"avatar,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session binds an opaque bearer token to a user until it expires.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
}

// Workspace groups channels and members.
type Workspace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Channel is a named conversation inside a workspace.
type Channel struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Topic       string    `json:"topic,omitempty"`
	IsPrivate   bool      `json:"is_private"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// DMConversation is a direct conversation between exactly two users.
type DMConversation struct {
	ID        string    `json:"id"`
	User1ID   string    `json:"user1_id"`
	User2ID   string    `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Other returns the participant that is not userID.
func (c *DMConversation) Other(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// Message is a persisted chat message. Exactly one of ChannelID and
// DMConversationID is set.
type Message struct {
	ID               string     `json:"id"`
	ChannelID        string     `json:"channel_id,omitempty"`
	DMConversationID string     `json:"dm_conversation_id,omitempty"`
	ThreadID         string     `json:"thread_id,omitempty"`
	UserID           string     `json:"user_id"`
	Content          string     `json:"content"`
	FileURL          string     `json:"file_url,omitempty"`
	FileName         string     `json:"file_name,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	EditedAt         *time.Time `json:"edited_at,omitempty"`
}

// MessageView is a message joined with its author's display fields.
type MessageView struct {
	Message
	Username   string `json:"username"`
	Avatar     string `json:"avatar,omitempty"`
	ReplyCount int    `json:"reply_count,omitempty"`
}

// Reaction is a single user's emoji on a message.
type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// Pin records that a message is pinned in its conversation.
type Pin struct {
	MessageID        string    `json:"message_id"`
	ChannelID        string    `json:"channel_id,omitempty"`
	DMConversationID string    `json:"dm_conversation_id,omitempty"`
	PinnedBy         string    `json:"pinned_by_user_id"`
	PinnedAt         time.Time `json:"pinned_at"`
}

// PinnedMessage is a pinned message with author and pinner display names.
type PinnedMessage struct {
	MessageView
	PinnedAt         time.Time `json:"pinned_at"`
	PinnedBy         string    `json:"pinned_by_user_id"`
	PinnedByUsername string    `json:"pinned_by_username,omitempty"`
}

// Presence status values.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// ValidStatus reports whether s is a known presence status.
func ValidStatus(s string) bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

// Presence is the per-user status record.
type Presence struct {
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"`
	CustomStatus string    `json:"custom_status,omitempty"`
	StatusEmoji  string    `json:"status_emoji,omitempty"`
	LastActivity time.Time `json:"last_activity"`
}

// MemberPresence is a workspace member with their presence, offline when
// no record exists.
type MemberPresence struct {
	UserID       string     `json:"id"`
	Username     string     `json:"username"`
	Avatar       string     `json:"avatar,omitempty"`
	Status       string     `json:"status"`
	CustomStatus string     `json:"custom_status,omitempty"`
	StatusEmoji  string     `json:"status_emoji,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// UnreadCount is the number of unseen messages in a channel for one user.
type UnreadCount struct {
	ChannelID   string `json:"channel_id"`
	UnreadCount int    `json:"unread_count"`
}
