package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/inland-taipen/teamchat/internal/gateway"
	"github.com/inland-taipen/teamchat/internal/store"
)

// EventPresenceUpdate announces a user's presence change to a workspace room.
const EventPresenceUpdate = "presence-update"

// PresenceUpdate is the payload of a presence-update event.
type PresenceUpdate struct {
	UserID       string `json:"user_id"`
	Status       string `json:"status"`
	CustomStatus string `json:"custom_status,omitempty"`
	StatusEmoji  string `json:"status_emoji,omitempty"`
}

// Presence tracks the workspaces each user has announced on this process
// and keeps the store's presence records in step with live connections.
type Presence struct {
	rooms      Rooms
	store      Store
	membership *Membership
	log        *slog.Logger

	mu        sync.Mutex
	announced map[string]map[string]struct{} // user id -> workspace ids
}

func NewPresence(rooms Rooms, st Store, membership *Membership, log *slog.Logger) *Presence {
	return &Presence{
		rooms:      rooms,
		store:      st,
		membership: membership,
		log:        log,
		announced:  make(map[string]map[string]struct{}),
	}
}

// SetOnline marks the connection's user online, subscribes the connection
// to the workspace room and announces the change there.
func (p *Presence) SetOnline(ctx context.Context, c *gateway.Conn, workspaceID string) (*store.Presence, error) {
	if err := p.membership.JoinWorkspace(ctx, c, workspaceID); err != nil {
		return nil, err
	}
	rec, err := p.store.SetOnline(ctx, c.UserID())
	if err != nil {
		return nil, fromStore("set online", err)
	}

	p.mu.Lock()
	set := p.announced[c.UserID()]
	if set == nil {
		set = make(map[string]struct{})
		p.announced[c.UserID()] = set
	}
	set[workspaceID] = struct{}{}
	p.mu.Unlock()

	p.rooms.BroadcastToRoom(WorkspaceRoom(workspaceID), EventPresenceUpdate, updateOf(rec))
	p.log.Info("user_online", "user", c.UserID(), "workspace", workspaceID)
	return rec, nil
}

// SetStatus upserts the user's status and custom text and announces it to
// every workspace the user belongs to.
func (p *Presence) SetStatus(ctx context.Context, userID, status, customStatus, emoji string) (*store.Presence, error) {
	status = strings.TrimSpace(status)
	if status != "" && !store.ValidStatus(status) {
		return nil, invalid("unknown status %q", status)
	}
	rec, err := p.store.SetStatus(ctx, userID, status, customStatus, emoji)
	if err != nil {
		return nil, fromStore("set status", err)
	}

	workspaces, err := p.store.WorkspaceIDsForUser(ctx, userID)
	if err != nil {
		return rec, fromStore("list workspaces", err)
	}
	update := updateOf(rec)
	for _, ws := range workspaces {
		p.rooms.BroadcastToRoom(WorkspaceRoom(ws), EventPresenceUpdate, update)
	}
	return rec, nil
}

// Disconnected marks the user offline once their last live connection is
// gone, announcing it to the workspaces they came online in.
func (p *Presence) Disconnected(ctx context.Context, c *gateway.Conn) error {
	if !c.LastForUser() || p.rooms.UserConnections(c.UserID()) > 0 {
		return nil
	}

	p.mu.Lock()
	set := p.announced[c.UserID()]
	delete(p.announced, c.UserID())
	p.mu.Unlock()

	rec, err := p.store.SetOffline(ctx, c.UserID())
	if err != nil {
		return fmt.Errorf("set offline %s: %w", c.UserID(), err)
	}
	update := updateOf(rec)
	for ws := range set {
		p.rooms.BroadcastToRoom(WorkspaceRoom(ws), EventPresenceUpdate, update)
	}
	p.log.Info("user_offline", "user", c.UserID(), "workspaces", len(set))
	return nil
}

func updateOf(rec *store.Presence) PresenceUpdate {
	return PresenceUpdate{
		UserID:       rec.UserID,
		Status:       rec.Status,
		CustomStatus: rec.CustomStatus,
		StatusEmoji:  rec.StatusEmoji,
	}
}
