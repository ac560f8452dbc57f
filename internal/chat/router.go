package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/inland-taipen/teamchat/internal/gateway"
)

// Client-to-server events.
const (
	EventJoinChannel  = "join-channel"
	EventLeaveChannel = "leave-channel"
	EventJoinDM       = "join-dm"
	EventLeaveDM      = "leave-dm"
	EventUserOnline   = "user-online"
	EventSendMessage  = "send-message"
	EventTyping       = "typing"
	EventStopTyping   = "stop-typing"
)

// OnlineInput is the payload of user-online.
type OnlineInput struct {
	UserID      string `json:"userId"`
	WorkspaceID string `json:"workspaceId"`
}

// TypingInput is the payload of typing and stop-typing. Username is accepted
// for older clients; the broadcast name comes from the account.
type TypingInput struct {
	Target
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// HandleEvent routes one inbound event. Failures are reported to c alone
// as an "error" event.
func (s *Service) HandleEvent(ctx context.Context, c *gateway.Conn, ev gateway.Event) {
	if err := s.route(ctx, c, ev); err != nil {
		s.reject(c, ev.Name, err)
	}
}

func (s *Service) route(ctx context.Context, c *gateway.Conn, ev gateway.Event) error {
	switch ev.Name {
	case EventJoinChannel:
		id, err := decodeID(ev, "channelId")
		if err != nil {
			return err
		}
		return s.Membership.JoinChannel(ctx, c, id)

	case EventLeaveChannel:
		id, err := decodeID(ev, "channelId")
		if err != nil {
			return err
		}
		s.Membership.LeaveChannel(c, id)
		s.stopTypingIn(c, ChannelRoom(id))
		return nil

	case EventJoinDM:
		id, err := decodeID(ev, "dmConversationId")
		if err != nil {
			return err
		}
		return s.Membership.JoinDM(ctx, c, id)

	case EventLeaveDM:
		id, err := decodeID(ev, "dmConversationId")
		if err != nil {
			return err
		}
		s.Membership.LeaveDM(c, id)
		s.stopTypingIn(c, DMRoom(id))
		return nil

	case EventUserOnline:
		var in OnlineInput
		if err := decode(ev, &in); err != nil {
			return err
		}
		if err := sameUser(c, in.UserID); err != nil {
			return err
		}
		_, err := s.Presence.SetOnline(ctx, c, in.WorkspaceID)
		return err

	case EventSendMessage:
		var in SendInput
		if err := decode(ev, &in); err != nil {
			return err
		}
		_, err := s.Dispatcher.Send(ctx, c, in)
		return err

	case EventTyping:
		var in TypingInput
		if err := decode(ev, &in); err != nil {
			return err
		}
		if err := sameUser(c, in.UserID); err != nil {
			return err
		}
		if err := in.Target.Validate(); err != nil {
			return err
		}
		if s.Dispatcher.authorize {
			if err := s.access.target(ctx, c.UserID(), in.Target); err != nil {
				return err
			}
		}
		// The display name comes from the account, not the payload.
		u, err := s.store.GetUser(ctx, c.UserID())
		if err != nil {
			return fromStore("user", err)
		}
		s.Typing.SetTyping(c, in.Room(), u.ID, u.Username)
		return nil

	case EventStopTyping:
		s.Typing.ClearTyping(c)
		return nil
	}
	return invalid("unknown event %q", ev.Name)
}

// stopTypingIn clears c's typing indicator when it points at room.
func (s *Service) stopTypingIn(c *gateway.Conn, room string) {
	if typed, ok := s.Typing.TypingIn(c); ok && typed == room {
		s.Typing.ClearTyping(c)
	}
}

func (s *Service) reject(c *gateway.Conn, event string, err error) {
	// Dispatcher failures are counted where they happen.
	if event != EventSendMessage {
		s.metrics.DispatchError(Kind(err))
	}
	message, details := Describe(err)
	c.EmitError(message, details)
	s.log.Debug("event_rejected", "conn", c.ID(), "event", event, "kind", Kind(err), "error", err)
}

func sameUser(c *gateway.Conn, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return invalid("userId required")
	}
	if userID != c.UserID() {
		return fmt.Errorf("%w: userId does not match the authenticated user", ErrForbidden)
	}
	return nil
}

func decode(ev gateway.Event, v any) error {
	if err := ev.Decode(v); err != nil {
		return invalid("%s: malformed payload", ev.Name)
	}
	return nil
}

// decodeID accepts either a bare id string or an object carrying it under
// key (or "id").
func decodeID(ev gateway.Event, key string) (string, error) {
	var id string
	if err := json.Unmarshal(ev.Data, &id); err == nil {
		return strings.TrimSpace(id), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(ev.Data, &obj); err != nil {
		return "", invalid("%s: expected an id", ev.Name)
	}
	for _, k := range []string{key, "id"} {
		if v, ok := obj[k].(string); ok {
			return strings.TrimSpace(v), nil
		}
	}
	return "", invalid("%s: expected an id", ev.Name)
}
