package chat

import (
	"context"
	"time"

	"github.com/inland-taipen/teamchat/internal/gateway"
	"github.com/inland-taipen/teamchat/internal/store"
)

// Rooms is the slice of the gateway the chat layer drives.
type Rooms interface {
	Join(c *gateway.Conn, room string)
	Leave(c *gateway.Conn, room string)
	BroadcastToRoom(room, event string, data any) int
	BroadcastToRoomExcept(room string, except *gateway.Conn, event string, data any) int
	UserConnections(userID string) int
}

// Store is the persistence the chat layer needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*store.User, error)

	CanAccessChannel(ctx context.Context, channelID, userID string) (bool, error)
	IsDMParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error)
	WorkspaceIDsForUser(ctx context.Context, userID string) ([]string, error)

	CreateMessage(ctx context.Context, m *store.Message) error
	GetMessage(ctx context.Context, id string) (*store.MessageView, error)
	UpdateMessageContent(ctx context.Context, id, content string) (time.Time, error)
	DeleteMessage(ctx context.Context, id string) ([]string, error)
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*store.Reaction, bool, error)
	PinMessage(ctx context.Context, messageID, userID string) (*store.Pin, error)
	UnpinMessage(ctx context.Context, messageID string) error

	SetOnline(ctx context.Context, userID string) (*store.Presence, error)
	SetOffline(ctx context.Context, userID string) (*store.Presence, error)
	SetStatus(ctx context.Context, userID, status, customStatus, emoji string) (*store.Presence, error)
}

var _ Store = (*store.DB)(nil)
var _ Rooms = (*gateway.Hub)(nil)
