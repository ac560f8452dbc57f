package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inland-taipen/teamchat/internal/config"
	"github.com/inland-taipen/teamchat/internal/logging"
	"github.com/inland-taipen/teamchat/internal/metrics"
)

func newTestHub(buffer int) *Hub {
	return NewHub(Options{
		SendBuffer: buffer,
		RateLimit:  config.RateLimitConfig{Burst: 100, RefillInterval: time.Second},
		Logger:     logging.Discard(),
		Metrics:    metrics.New(),
	})
}

// attached returns a registered connection without a websocket or pumps.
func attached(h *Hub, userID string) *Conn {
	c := NewConn(nil, h, userID, "test")
	h.attach(c)
	return c
}

func drain(t *testing.T, c *Conn) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return out
			}
			var ev Event
			require.NoError(t, json.Unmarshal(raw, &ev))
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestBroadcastReachesOnlyJoinedConnections(t *testing.T) {
	h := newTestHub(8)
	a := attached(h, "alice")
	b := attached(h, "bob")
	c := attached(h, "carol")

	h.Join(a, "channel:general")
	h.Join(b, "channel:general")
	h.Join(c, "channel:random")

	n := h.BroadcastToRoom("channel:general", "new-message", map[string]string{"content": "hi"})
	require.Equal(t, 2, n)

	for _, conn := range []*Conn{a, b} {
		evs := drain(t, conn)
		require.Len(t, evs, 1)
		require.Equal(t, "new-message", evs[0].Name)
		require.JSONEq(t, `{"content":"hi"}`, string(evs[0].Data))
	}
	require.Empty(t, drain(t, c))
}

func TestJoinIsIdempotentAndLeaveUnknownIsNoop(t *testing.T) {
	h := newTestHub(8)
	a := attached(h, "alice")

	h.Leave(a, "channel:never")
	h.Join(a, "channel:general")
	h.Join(a, "channel:general")
	require.True(t, h.InRoom(a, "channel:general"))
	require.Equal(t, []string{"channel:general"}, h.Rooms(a))

	require.Equal(t, 1, h.BroadcastToRoom("channel:general", "x", nil))
	require.Len(t, drain(t, a), 1)

	h.Leave(a, "channel:general")
	require.False(t, h.InRoom(a, "channel:general"))
	require.Equal(t, 0, h.BroadcastToRoom("channel:general", "x", nil))
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	h := newTestHub(8)
	a := attached(h, "alice")
	b := attached(h, "bob")
	h.Join(a, "dm:1")
	h.Join(b, "dm:1")

	require.Equal(t, 1, h.BroadcastToRoomExcept("dm:1", a, "user-typing", map[string]string{"userId": "alice"}))
	require.Empty(t, drain(t, a))
	require.Len(t, drain(t, b), 1)
}

func TestPerConnectionOrderIsPreserved(t *testing.T) {
	h := newTestHub(8)
	a := attached(h, "alice")
	h.Join(a, "channel:general")

	h.BroadcastToRoom("channel:general", "user-stop-typing", nil)
	h.BroadcastToRoom("channel:general", "new-message", nil)

	evs := drain(t, a)
	require.Len(t, evs, 2)
	require.Equal(t, "user-stop-typing", evs[0].Name)
	require.Equal(t, "new-message", evs[1].Name)
}

func TestSlowConnectionIsDropped(t *testing.T) {
	h := newTestHub(1)
	slow := attached(h, "slow")
	h.Join(slow, "channel:general")

	require.Equal(t, 1, h.BroadcastToRoom("channel:general", "one", nil))
	require.Equal(t, 0, h.BroadcastToRoom("channel:general", "two", nil))

	select {
	case <-slow.detached:
	default:
		t.Fatal("slow connection was not detached")
	}
	require.True(t, slow.LastForUser())
	require.Equal(t, 0, h.ConnectionCount())
	require.False(t, h.InRoom(slow, "channel:general"))
	require.False(t, slow.Emit("three", nil))
}

func TestUserConnectionCounting(t *testing.T) {
	h := newTestHub(8)
	tab1 := attached(h, "alice")
	tab2 := attached(h, "alice")
	require.Equal(t, 2, h.UserConnections("alice"))

	h.detach(tab1)
	require.False(t, tab1.LastForUser())
	require.Equal(t, 1, h.UserConnections("alice"))

	h.detach(tab2)
	h.detach(tab2)
	require.True(t, tab2.LastForUser())
	require.Equal(t, 0, h.UserConnections("alice"))
}

func TestMembershipIsConnectionScoped(t *testing.T) {
	h := newTestHub(8)
	tab1 := attached(h, "alice")
	tab2 := attached(h, "alice")
	h.Join(tab1, "channel:general")

	h.BroadcastToRoom("channel:general", "new-message", nil)
	require.Len(t, drain(t, tab1), 1)
	require.Empty(t, drain(t, tab2))
}

func TestEncodeAndDecode(t *testing.T) {
	raw, err := Encode("presence-update", map[string]string{"user_id": "u1", "status": "online"})
	require.NoError(t, err)

	ev, err := parseEvent(raw)
	require.NoError(t, err)
	require.Equal(t, "presence-update", ev.Name)

	var body struct {
		UserID string `json:"user_id"`
	}
	require.NoError(t, ev.Decode(&body))
	require.Equal(t, "u1", body.UserID)

	require.ErrorIs(t, Event{Name: "x"}.Decode(&body), ErrEmptyPayload)

	_, err = parseEvent([]byte(`{"data":1}`))
	require.Error(t, err)
	_, err = parseEvent([]byte(`not json`))
	require.Error(t, err)
}
