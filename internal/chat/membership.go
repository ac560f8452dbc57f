package chat

import (
	"context"
	"log/slog"

	"github.com/inland-taipen/teamchat/internal/gateway"
)

// Membership translates conversation views into gateway rooms. When
// authorize is set, joins are checked against the store first.
type Membership struct {
	rooms     Rooms
	access    access
	authorize bool
	log       *slog.Logger
}

func NewMembership(rooms Rooms, st Store, authorize bool, log *slog.Logger) *Membership {
	return &Membership{rooms: rooms, access: access{store: st}, authorize: authorize, log: log}
}

// JoinChannel subscribes c to the channel's room.
func (m *Membership) JoinChannel(ctx context.Context, c *gateway.Conn, channelID string) error {
	if channelID == "" {
		return invalid("channel id required")
	}
	if m.authorize {
		if err := m.access.channel(ctx, c.UserID(), channelID); err != nil {
			return err
		}
	}
	m.rooms.Join(c, ChannelRoom(channelID))
	m.log.Debug("joined_room", "conn", c.ID(), "room", ChannelRoom(channelID))
	return nil
}

// LeaveChannel unsubscribes c from the channel's room. It never fails.
func (m *Membership) LeaveChannel(c *gateway.Conn, channelID string) {
	m.rooms.Leave(c, ChannelRoom(channelID))
}

// JoinDM subscribes c to a direct conversation's room.
func (m *Membership) JoinDM(ctx context.Context, c *gateway.Conn, conversationID string) error {
	if conversationID == "" {
		return invalid("conversation id required")
	}
	if m.authorize {
		if err := m.access.dm(ctx, c.UserID(), conversationID); err != nil {
			return err
		}
	}
	m.rooms.Join(c, DMRoom(conversationID))
	m.log.Debug("joined_room", "conn", c.ID(), "room", DMRoom(conversationID))
	return nil
}

// LeaveDM unsubscribes c from a direct conversation's room.
func (m *Membership) LeaveDM(c *gateway.Conn, conversationID string) {
	m.rooms.Leave(c, DMRoom(conversationID))
}

// JoinWorkspace subscribes c to the workspace's presence room.
func (m *Membership) JoinWorkspace(ctx context.Context, c *gateway.Conn, workspaceID string) error {
	if workspaceID == "" {
		return invalid("workspace id required")
	}
	if m.authorize {
		if err := m.access.workspace(ctx, c.UserID(), workspaceID); err != nil {
			return err
		}
	}
	m.rooms.Join(c, WorkspaceRoom(workspaceID))
	return nil
}
