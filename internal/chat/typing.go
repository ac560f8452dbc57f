package chat

import (
	"sync"
	"time"

	"github.com/inland-taipen/teamchat/internal/gateway"
)

const (
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stop-typing"
)

// TypingUpdate is the payload of user-typing and user-stop-typing.
type TypingUpdate struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

type typingEntry struct {
	room     string
	userID   string
	username string
	timer    *time.Timer
}

// Typing holds at most one "typing in room X" entry per connection.
// A positive ttl clears entries that were not refreshed in time.
type Typing struct {
	rooms Rooms
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]*typingEntry
}

func NewTyping(rooms Rooms, ttl time.Duration) *Typing {
	return &Typing{rooms: rooms, ttl: ttl, entries: make(map[string]*typingEntry)}
}

// SetTyping records that c is typing in room, replacing any earlier entry,
// and tells the rest of the room. Moving to another room stops the
// indicator in the old one.
func (t *Typing) SetTyping(c *gateway.Conn, room, userID, username string) {
	entry := &typingEntry{room: room, userID: userID, username: username}

	t.mu.Lock()
	prev := t.entries[c.ID()]
	if prev != nil && prev.timer != nil {
		prev.timer.Stop()
	}
	t.entries[c.ID()] = entry
	if t.ttl > 0 {
		entry.timer = time.AfterFunc(t.ttl, func() { t.expire(c, entry) })
	}
	t.mu.Unlock()

	if prev != nil && prev.room != room {
		t.rooms.BroadcastToRoomExcept(prev.room, c, EventUserStopTyping, TypingUpdate{UserID: prev.userID})
	}
	t.rooms.BroadcastToRoomExcept(room, c, EventUserTyping, TypingUpdate{UserID: userID, Username: username})
}

// ClearTyping removes the entry of c, if any, and tells the room. It reports
// whether an entry existed.
func (t *Typing) ClearTyping(c *gateway.Conn) bool {
	t.mu.Lock()
	entry := t.entries[c.ID()]
	delete(t.entries, c.ID())
	t.mu.Unlock()

	if entry == nil {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	t.rooms.BroadcastToRoomExcept(entry.room, c, EventUserStopTyping, TypingUpdate{UserID: entry.userID})
	return true
}

// TypingIn returns the room c is typing in, if any.
func (t *Typing) TypingIn(c *gateway.Conn) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e := t.entries[c.ID()]; e != nil {
		return e.room, true
	}
	return "", false
}

func (t *Typing) expire(c *gateway.Conn, entry *typingEntry) {
	t.mu.Lock()
	if t.entries[c.ID()] != entry {
		t.mu.Unlock()
		return
	}
	delete(t.entries, c.ID())
	t.mu.Unlock()

	t.rooms.BroadcastToRoomExcept(entry.room, c, EventUserStopTyping, TypingUpdate{UserID: entry.userID})
}
