package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inland-taipen/teamchat/internal/gateway"
	"github.com/inland-taipen/teamchat/internal/metrics"
	"github.com/inland-taipen/teamchat/internal/store"
)

// Server-to-client message events.
const (
	EventNewMessage      = "new-message"
	EventMessageEdited   = "message-edited"
	EventMessageDeleted  = "message-deleted"
	EventReactionUpdated = "reaction-updated"
)

// Message origins used as metric labels.
const (
	OriginSocket = "socket"
	OriginUpload = "upload"
)

// SendInput is the payload of send-message.
type SendInput struct {
	Target
	UserID   string `json:"userId"`
	Content  string `json:"content"`
	ThreadID string `json:"threadId,omitempty"`
	FileURL  string `json:"fileUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// MessageDeleted is the payload of message-deleted.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
	ThreadID  string `json:"threadId,omitempty"`
}

// ReactionUpdated is the payload of reaction-updated.
type ReactionUpdated struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId"`
	Removed   bool   `json:"removed"`
}

// Dispatcher validates, persists and fans out messages and their later
// edits, deletions and reactions.
type Dispatcher struct {
	rooms       Rooms
	store       Store
	typing      *Typing
	access      access
	authorize   bool
	inlineLimit int
	metrics     *metrics.Metrics
	log         *slog.Logger
}

// Send handles a send-message event from c. The payload's userId must be
// the user bound to c at handshake.
func (d *Dispatcher) Send(ctx context.Context, c *gateway.Conn, in SendInput) (*store.MessageView, error) {
	return d.dispatch(ctx, c, c.UserID(), in, OriginSocket)
}

// SendUploaded persists and broadcasts a message whose attachment arrived
// through the HTTP upload path. It reaches clients exactly like Send.
func (d *Dispatcher) SendUploaded(ctx context.Context, userID string, in SendInput) (*store.MessageView, error) {
	return d.dispatch(ctx, nil, userID, in, OriginUpload)
}

func (d *Dispatcher) dispatch(ctx context.Context, c *gateway.Conn, authUser string, in SendInput, origin string) (*store.MessageView, error) {
	view, err := d.persist(ctx, authUser, in)
	if err != nil {
		d.metrics.DispatchError(Kind(err))
		return nil, err
	}

	if c != nil {
		d.typing.ClearTyping(c)
	}
	n := d.rooms.BroadcastToRoom(RoomOf(&view.Message), EventNewMessage, view)
	d.metrics.MessageSent(origin)
	d.log.Info("message_dispatched", "id", view.ID, "user", view.UserID, "room", RoomOf(&view.Message),
		"origin", origin, "recipients", n)
	return view, nil
}

func (d *Dispatcher) persist(ctx context.Context, authUser string, in SendInput) (*store.MessageView, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, invalid("sender identity required")
	}
	if strings.TrimSpace(in.Content) == "" && in.FileURL == "" {
		return nil, invalid("message must have content or file")
	}
	if strings.HasPrefix(in.FileURL, "data:") && len(in.FileURL) > d.inlineLimit {
		return nil, fmt.Errorf("%w: inline file exceeds %d bytes, upload it over HTTP instead",
			ErrPayloadTooLarge, d.inlineLimit)
	}
	if in.UserID != authUser {
		return nil, fmt.Errorf("%w: userId does not match the authenticated user", ErrForbidden)
	}
	if err := in.Target.Validate(); err != nil {
		return nil, err
	}
	if d.authorize {
		if err := d.access.target(ctx, authUser, in.Target); err != nil {
			return nil, err
		}
	}
	if in.ThreadID != "" {
		if err := d.checkParent(ctx, in); err != nil {
			return nil, err
		}
	}

	author, err := d.store.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, fromStore("user", err)
	}

	msg := &store.Message{
		ChannelID:        in.ChannelID,
		DMConversationID: in.DMConversationID,
		ThreadID:         in.ThreadID,
		UserID:           author.ID,
		Content:          in.Content,
		FileURL:          in.FileURL,
		FileName:         in.FileName,
	}
	if err := d.store.CreateMessage(ctx, msg); err != nil {
		d.log.Error("message_save_failed", "user", author.ID, "error", err)
		return nil, fmt.Errorf("%w: save message: %v", ErrStorage, err)
	}
	return &store.MessageView{Message: *msg, Username: author.Username, Avatar: author.Avatar}, nil
}

// checkParent keeps threads one level deep and inside one conversation.
func (d *Dispatcher) checkParent(ctx context.Context, in SendInput) error {
	parent, err := d.store.GetMessage(ctx, in.ThreadID)
	if err != nil {
		return fromStore("thread parent "+in.ThreadID, err)
	}
	if parent.ThreadID != "" {
		return invalid("replies cannot have replies")
	}
	if parent.ChannelID != in.ChannelID || parent.DMConversationID != in.DMConversationID {
		return invalid("reply must be in the parent's conversation")
	}
	return nil
}

// authoredBy loads a message and requires userID to be its author.
func (d *Dispatcher) authoredBy(ctx context.Context, userID, messageID string) (*store.MessageView, error) {
	msg, err := d.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fromStore("message "+messageID, err)
	}
	if msg.UserID != userID {
		return nil, fmt.Errorf("%w: only the author can change message %s", ErrForbidden, messageID)
	}
	return msg, nil
}

// Edit replaces a message's content. Only its author may edit it.
func (d *Dispatcher) Edit(ctx context.Context, userID, messageID, content string) (*store.MessageView, error) {
	view, err := d.edit(ctx, userID, messageID, content)
	if err != nil {
		d.metrics.DispatchError(Kind(err))
		return nil, err
	}
	d.rooms.BroadcastToRoom(RoomOf(&view.Message), EventMessageEdited, view)
	return view, nil
}

func (d *Dispatcher) edit(ctx context.Context, userID, messageID, content string) (*store.MessageView, error) {
	if strings.TrimSpace(content) == "" {
		return nil, invalid("content required")
	}
	view, err := d.authoredBy(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	editedAt, err := d.store.UpdateMessageContent(ctx, messageID, content)
	if err != nil {
		return nil, fromStore("edit message", err)
	}
	view.Content = content
	view.EditedAt = &editedAt
	return view, nil
}

// Delete removes a message with its reactions, pin and replies. Only its
// author may delete it. Every removed reply gets its own message-deleted
// ahead of the parent's.
func (d *Dispatcher) Delete(ctx context.Context, userID, messageID string) error {
	view, err := d.authoredBy(ctx, userID, messageID)
	var replies []string
	if err == nil {
		if replies, err = d.store.DeleteMessage(ctx, messageID); err != nil {
			err = fromStore("delete message", err)
		}
	}
	if err != nil {
		d.metrics.DispatchError(Kind(err))
		return err
	}
	room := RoomOf(&view.Message)
	for _, id := range replies {
		d.rooms.BroadcastToRoom(room, EventMessageDeleted, MessageDeleted{MessageID: id, ThreadID: messageID})
	}
	d.rooms.BroadcastToRoom(room, EventMessageDeleted, MessageDeleted{MessageID: messageID})
	d.log.Info("message_deleted", "id", messageID, "user", userID, "replies", len(replies))
	return nil
}

// React toggles userID's emoji reaction on a message.
func (d *Dispatcher) React(ctx context.Context, userID, messageID, emoji string) (*ReactionUpdated, error) {
	update, err := d.react(ctx, userID, messageID, emoji)
	if err != nil {
		d.metrics.DispatchError(Kind(err))
		return nil, err
	}
	return update, nil
}

func (d *Dispatcher) react(ctx context.Context, userID, messageID, emoji string) (*ReactionUpdated, error) {
	if strings.TrimSpace(emoji) == "" {
		return nil, invalid("emoji required")
	}
	msg, err := d.readable(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	_, removed, err := d.store.ToggleReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, fromStore("toggle reaction", err)
	}
	update := &ReactionUpdated{MessageID: messageID, Emoji: emoji, UserID: userID, Removed: removed}
	d.rooms.BroadcastToRoom(RoomOf(&msg.Message), EventReactionUpdated, update)
	return update, nil
}

// Pin pins a message in its conversation.
func (d *Dispatcher) Pin(ctx context.Context, userID, messageID string) (*store.Pin, error) {
	if _, err := d.readable(ctx, userID, messageID); err != nil {
		return nil, err
	}
	pin, err := d.store.PinMessage(ctx, messageID, userID)
	if err != nil {
		return nil, fromStore("pin message", err)
	}
	return pin, nil
}

// Unpin removes a message's pin record.
func (d *Dispatcher) Unpin(ctx context.Context, userID, messageID string) error {
	if _, err := d.readable(ctx, userID, messageID); err != nil {
		return err
	}
	if err := d.store.UnpinMessage(ctx, messageID); err != nil {
		return fromStore("unpin message", err)
	}
	return nil
}

// readable loads a message userID may see.
func (d *Dispatcher) readable(ctx context.Context, userID, messageID string) (*store.MessageView, error) {
	msg, err := d.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fromStore("message "+messageID, err)
	}
	t := Target{ChannelID: msg.ChannelID, DMConversationID: msg.DMConversationID}
	if err := d.access.target(ctx, userID, t); err != nil {
		return nil, err
	}
	return msg, nil
}
