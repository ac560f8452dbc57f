package chat

import "github.com/inland-taipen/teamchat/internal/store"

const (
	channelPrefix   = "channel:"
	dmPrefix        = "dm:"
	workspacePrefix = "workspace:"
)

func ChannelRoom(channelID string) string { return channelPrefix + channelID }

func DMRoom(conversationID string) string { return dmPrefix + conversationID }

func WorkspaceRoom(workspaceID string) string { return workspacePrefix + workspaceID }

// RoomOf derives the broadcast room of a message from its own target fields.
func RoomOf(m *store.Message) string {
	if m.ChannelID != "" {
		return ChannelRoom(m.ChannelID)
	}
	return DMRoom(m.DMConversationID)
}

// Target names exactly one conversation: a channel or a direct conversation.
type Target struct {
	ChannelID        string `json:"channelId,omitempty"`
	DMConversationID string `json:"dmConversationId,omitempty"`
}

// Validate requires exactly one of the two references.
func (t Target) Validate() error {
	switch {
	case t.ChannelID == "" && t.DMConversationID == "":
		return invalid("channelId or dmConversationId required")
	case t.ChannelID != "" && t.DMConversationID != "":
		return invalid("channelId and dmConversationId are mutually exclusive")
	}
	return nil
}

// Room returns the broadcast room of the target.
func (t Target) Room() string {
	if t.ChannelID != "" {
		return ChannelRoom(t.ChannelID)
	}
	return DMRoom(t.DMConversationID)
}
