package chat

import (
	"context"
	"fmt"
)

// access answers "may this user see that conversation" against the store.
type access struct {
	store Store
}

func (a access) channel(ctx context.Context, userID, channelID string) error {
	ok, err := a.store.CanAccessChannel(ctx, channelID, userID)
	if err != nil {
		return fromStore("channel "+channelID, err)
	}
	if !ok {
		return fmt.Errorf("%w: not a member of channel %s", ErrForbidden, channelID)
	}
	return nil
}

func (a access) dm(ctx context.Context, userID, conversationID string) error {
	ok, err := a.store.IsDMParticipant(ctx, conversationID, userID)
	if err != nil {
		return fromStore("dm conversation "+conversationID, err)
	}
	if !ok {
		return fmt.Errorf("%w: not a participant of conversation %s", ErrForbidden, conversationID)
	}
	return nil
}

func (a access) workspace(ctx context.Context, userID, workspaceID string) error {
	ok, err := a.store.IsWorkspaceMember(ctx, workspaceID, userID)
	if err != nil {
		return fromStore("workspace "+workspaceID, err)
	}
	if !ok {
		return fmt.Errorf("%w: not a member of workspace %s", ErrForbidden, workspaceID)
	}
	return nil
}

func (a access) target(ctx context.Context, userID string, t Target) error {
	if t.ChannelID != "" {
		return a.channel(ctx, userID, t.ChannelID)
	}
	return a.dm(ctx, userID, t.DMConversationID)
}
