package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/inland-taipen/teamchat/internal/chat"
	"github.com/inland-taipen/teamchat/internal/config"
	"github.com/inland-taipen/teamchat/internal/gateway"
	"github.com/inland-taipen/teamchat/internal/logging"
	"github.com/inland-taipen/teamchat/internal/metrics"
	"github.com/inland-taipen/teamchat/internal/store"
)

const testOrigin = "http://localhost:3000"

type testServer struct {
	t   *testing.T
	cfg *config.Config
	db  *store.DB
	hub *gateway.Hub
	ts  *httptest.Server
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Now().UTC()
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.UploadsDir = t.TempDir()
	cfg.Server.PublicBaseURL = "http://files.test"
	cfg.HTTP.RateLimit = config.HTTPRateLimitConfig{RPS: 1000, Burst: 1000}
	cfg.HTTP.MaxUploadSize = 1024

	db, err := store.Open(filepath.Join(t.TempDir(), "server.db"), logging.Discard())
	require.NoError(t, err)
	db.SetClock(steppingClock())

	m := metrics.New()
	hub := gateway.NewHub(gateway.Options{
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		SendBuffer:     64,
		RateLimit:      cfg.Realtime.RateLimit,
		Logger:         logging.Discard(),
		Metrics:        m,
	})
	svc := chat.NewService(hub, db, chat.Options{
		InlineAttachmentLimit: cfg.Realtime.InlineAttachmentLimit,
		AuthorizeJoins:        true,
		Logger:                logging.Discard(),
		Metrics:               m,
	})
	hub.SetHandler(svc)
	go hub.Run()

	srv := New(cfg, db, hub, svc, m, logging.Discard())
	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
		ts.Close()
		_ = db.Close()
	})
	return &testServer{t: t, cfg: cfg, db: db, hub: hub, ts: ts}
}

// do sends a JSON request and decodes a JSON response into out when set.
func (s *testServer) do(method, path, token string, body, out any) int {
	s.t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, reader)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.send(req, out)
}

func (s *testServer) send(req *http.Request, out any) int {
	s.t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(s.t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type session struct {
	user  *store.User
	token string
}

func (s *testServer) register(name string) session {
	s.t.Helper()
	var got authResponse
	status := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": name,
		"email":    name + "@example.com",
		"password": "hunter22",
	}, &got)
	require.Equal(s.t, http.StatusCreated, status)
	require.NotEmpty(s.t, got.SessionID)
	return session{user: got.User, token: got.SessionID}
}

func (s *testServer) createWorkspace(owner session, name string) (*store.Workspace, *store.Channel) {
	s.t.Helper()
	var got struct {
		Workspace *store.Workspace `json:"workspace"`
		General   *store.Channel   `json:"general_channel"`
	}
	status := s.do(http.MethodPost, "/api/workspaces", owner.token, map[string]string{"name": name}, &got)
	require.Equal(s.t, http.StatusCreated, status)
	return got.Workspace, got.General
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws"
}

func (s *testServer) dial(token string, header http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	u := s.wsURL()
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	ws, resp, err := dialer.Dial(u, header)
	if err == nil {
		s.t.Cleanup(func() { _ = ws.Close() })
	}
	return ws, resp, err
}

func originHeader(origin string) http.Header {
	h := http.Header{}
	h.Set("Origin", origin)
	return h
}

// readEvent returns the next event, splitting coalesced frames.
func readEvent(t *testing.T, ws *websocket.Conn, pending *[]gateway.Event) gateway.Event {
	t.Helper()
	for len(*pending) == 0 {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
		_, frame, err := ws.ReadMessage()
		require.NoError(t, err)
		for _, line := range strings.Split(string(frame), "\n") {
			var ev gateway.Event
			require.NoError(t, json.Unmarshal([]byte(line), &ev))
			*pending = append(*pending, ev)
		}
	}
	ev := (*pending)[0]
	*pending = (*pending)[1:]
	return ev
}

func emit(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := gateway.Encode(event, data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, raw))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.ts.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	require.Equal(t, "teamchat server is running", string(body))

	resp, err = http.Get(s.ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "teamchat_gateway_connections")
}

func TestAuthLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")

	t.Run("duplicate email", func(t *testing.T) {
		status := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "alice2", "email": "ALICE@example.com", "password": "hunter22",
		}, nil)
		require.Equal(t, http.StatusConflict, status)
	})

	t.Run("short password", func(t *testing.T) {
		status := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "dave", "email": "dave@example.com", "password": "123",
		}, nil)
		require.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("missing fields", func(t *testing.T) {
		status := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{"username": "erin"}, nil)
		require.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("wrong password", func(t *testing.T) {
		status := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "alice@example.com", "password": "nope-nope",
		}, nil)
		require.Equal(t, http.StatusUnauthorized, status)
	})

	var login authResponse
	status := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "hunter22",
	}, &login)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, alice.user.ID, login.User.ID)
	require.NotEqual(t, alice.token, login.SessionID)

	var me struct {
		User *store.User `json:"user"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/auth/me", login.SessionID, nil, &me))
	require.Equal(t, "alice", me.User.Username)

	req, err := http.NewRequest(http.MethodGet, s.ts.URL+"/api/auth/me", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("X-Session-Id", alice.token)
	require.Equal(t, http.StatusOK, s.send(req, nil))

	var errBody map[string]string
	require.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/me", "", nil, &errBody))
	require.Equal(t, "authentication required", errBody["error"])

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/auth/logout", login.SessionID, nil, nil))
	require.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/me", login.SessionID, nil, &errBody))
	require.Equal(t, "invalid or expired session", errBody["error"])

	// The other session is unaffected.
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/auth/me", alice.token, nil, nil))
}

func TestWebSocketHandshake(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")

	t.Run("without a session", func(t *testing.T) {
		_, resp, err := s.dial("", originHeader(testOrigin))
		require.Error(t, err)
		require.NotNil(t, resp)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("with an unknown session", func(t *testing.T) {
		_, resp, err := s.dial("not-a-session", originHeader(testOrigin))
		require.Error(t, err)
		require.NotNil(t, resp)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("from a disallowed origin", func(t *testing.T) {
		_, resp, err := s.dial(alice.token, originHeader("http://evil.example"))
		require.Error(t, err)
		require.NotNil(t, resp)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("non-GET", func(t *testing.T) {
		resp, err := http.Post(s.ts.URL+"/ws", "text/plain", strings.NewReader("hi"))
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("authenticated", func(t *testing.T) {
		header := originHeader(testOrigin)
		header.Set("Authorization", "Bearer "+alice.token)
		_, _, err := s.dial("", header)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return s.hub.UserConnections(alice.user.ID) == 1
		}, 2*time.Second, 10*time.Millisecond)
	})
}

// TestSocketIdentityComesFromSession checks that a socket cannot speak for
// another user even when it names them in the payload.
func TestSocketIdentityComesFromSession(t *testing.T) {
	s := newTestServer(t)
	alice, bob := s.register("alice"), s.register("bob")
	ws, general := s.createWorkspace(alice, "Acme")
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/workspaces/"+ws.ID+"/members", alice.token,
		map[string]string{"userId": bob.user.ID}, nil))

	conn, _, err := s.dial(bob.token, originHeader(testOrigin))
	require.NoError(t, err)
	var pending []gateway.Event

	emit(t, conn, chat.EventSendMessage, chat.SendInput{
		Target:  chat.Target{ChannelID: general.ID},
		UserID:  alice.user.ID,
		Content: "I am alice",
	})
	ev := readEvent(t, conn, &pending)
	require.Equal(t, gateway.EventError, ev.Name)
	var body gateway.ErrorPayload
	require.NoError(t, ev.Decode(&body))
	require.Equal(t, "forbidden", body.Message)
}

func uploadRequest(t *testing.T, s *testServer, token string, meta map[string]string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.ts.URL+"/api/messages/upload-file", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/octet-stream")
	if meta != nil {
		raw, err := json.Marshal(meta)
		require.NoError(t, err)
		req.Header.Set("X-File-Metadata", base64.StdEncoding.EncodeToString(raw))
	}
	return req
}

func encodeFileName(name string) string {
	return base64.StdEncoding.EncodeToString([]byte(url.PathEscape(name)))
}

func TestUploadBroadcastsNewMessage(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")
	_, general := s.createWorkspace(alice, "Acme")

	conn, _, err := s.dial(alice.token, originHeader(testOrigin))
	require.NoError(t, err)
	var pending []gateway.Event
	emit(t, conn, chat.EventJoinChannel, general.ID)
	emit(t, conn, chat.EventUserOnline, map[string]string{})
	require.Equal(t, gateway.EventError, readEvent(t, conn, &pending).Name)

	var got struct {
		Success bool              `json:"success"`
		Message store.MessageView `json:"message"`
		FileURL string            `json:"fileUrl"`
	}
	req := uploadRequest(t, s, alice.token, map[string]string{
		"channelId":   general.ID,
		"fileName":    encodeFileName("notes v1.txt"),
		"contentType": "text/plain",
	}, []byte("hello world"))
	require.Equal(t, http.StatusOK, s.send(req, &got))
	require.True(t, got.Success)
	require.True(t, strings.HasPrefix(got.FileURL, "http://files.test/uploads/"))
	require.True(t, strings.HasSuffix(got.FileURL, ".txt"))
	require.Equal(t, "notes v1.txt", got.Message.FileName)
	require.Equal(t, alice.user.ID, got.Message.UserID)

	ev := readEvent(t, conn, &pending)
	require.Equal(t, chat.EventNewMessage, ev.Name)
	var broadcast store.MessageView
	require.NoError(t, ev.Decode(&broadcast))
	require.Equal(t, got.Message.ID, broadcast.ID)
	require.Equal(t, got.FileURL, broadcast.FileURL)

	saved := path.Base(got.FileURL)
	data, err := os.ReadFile(filepath.Join(s.cfg.Storage.UploadsDir, saved))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))

	resp, err := http.Get(s.ts.URL + "/uploads/" + saved)
	require.NoError(t, err)
	served, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, "hello world", string(served))

	t.Run("missing metadata", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, s.send(uploadRequest(t, s, alice.token, nil, []byte("x")), nil))
	})

	t.Run("unknown channel", func(t *testing.T) {
		req := uploadRequest(t, s, alice.token, map[string]string{"channelId": "nope"}, []byte("x"))
		require.Equal(t, http.StatusNotFound, s.send(req, nil))
	})

	t.Run("too large", func(t *testing.T) {
		req := uploadRequest(t, s, alice.token, map[string]string{"channelId": general.ID}, bytes.Repeat([]byte("x"), 4096))
		require.Equal(t, http.StatusRequestEntityTooLarge, s.send(req, nil))
	})

	t.Run("outsider", func(t *testing.T) {
		carol := s.register("carol")
		req := uploadRequest(t, s, carol.token, map[string]string{"channelId": general.ID}, []byte("x"))
		require.Equal(t, http.StatusForbidden, s.send(req, nil))
	})
}

func TestEditAndDeleteStatusCodes(t *testing.T) {
	s := newTestServer(t)
	alice, bob := s.register("alice"), s.register("bob")
	ws, general := s.createWorkspace(alice, "Acme")
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/workspaces/"+ws.ID+"/members", alice.token,
		map[string]string{"userId": bob.user.ID}, nil))

	msg := &store.Message{ChannelID: general.ID, UserID: alice.user.ID, Content: "first"}
	require.NoError(t, s.db.CreateMessage(context.Background(), msg))
	target := "/api/messages/" + msg.ID

	require.Equal(t, http.StatusForbidden, s.do(http.MethodPut, target, bob.token, map[string]string{"content": "mine now"}, nil))
	require.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, target, alice.token, map[string]string{"content": "  "}, nil))
	require.Equal(t, http.StatusNotFound, s.do(http.MethodPut, "/api/messages/missing", alice.token, map[string]string{"content": "x"}, nil))

	var edited store.MessageView
	require.Equal(t, http.StatusOK, s.do(http.MethodPut, target, alice.token, map[string]string{"content": "second"}, &edited))
	require.Equal(t, "second", edited.Content)
	require.NotNil(t, edited.EditedAt)

	require.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, target, bob.token, nil, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, target, alice.token, nil, nil))
	require.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, target, alice.token, nil, nil))
}

func TestHistoryRequiresAccess(t *testing.T) {
	s := newTestServer(t)
	alice, carol := s.register("alice"), s.register("carol")
	_, general := s.createWorkspace(alice, "Acme")

	parent := &store.Message{ChannelID: general.ID, UserID: alice.user.ID, Content: "parent"}
	require.NoError(t, s.db.CreateMessage(context.Background(), parent))
	reply := &store.Message{ChannelID: general.ID, ThreadID: parent.ID, UserID: alice.user.ID, Content: "reply"}
	require.NoError(t, s.db.CreateMessage(context.Background(), reply))

	var history []store.MessageView
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/channels/"+general.ID+"/messages", alice.token, nil, &history))
	require.Len(t, history, 1)
	require.Equal(t, "parent", history[0].Content)
	require.Equal(t, 1, history[0].ReplyCount)

	var replies []store.MessageView
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/messages/"+parent.ID+"/threads", alice.token, nil, &replies))
	require.Len(t, replies, 1)
	require.Equal(t, "reply", replies[0].Content)

	require.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/channels/"+general.ID+"/messages", carol.token, nil, nil))
	require.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/messages/"+parent.ID+"/threads", carol.token, nil, nil))
	require.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/channels/missing/messages", alice.token, nil, nil))
}

func TestDirectConversations(t *testing.T) {
	s := newTestServer(t)
	alice, bob, carol := s.register("alice"), s.register("bob"), s.register("carol")

	require.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/dm-conversations", alice.token,
		map[string]string{"userId": alice.user.ID}, nil))
	require.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/dm-conversations", alice.token,
		map[string]string{"userId": "ghost"}, nil))

	var first, second store.DMConversation
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/dm-conversations", alice.token,
		map[string]string{"userId": bob.user.ID}, &first))
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/dm-conversations", bob.token,
		map[string]string{"userId": alice.user.ID}, &second))
	require.Equal(t, first.ID, second.ID)

	var list []store.DMConversation
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/dm-conversations", bob.token, nil, &list))
	require.Len(t, list, 1)

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/dm-conversations/"+first.ID+"/messages", alice.token, nil, nil))
	require.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/dm-conversations/"+first.ID+"/messages", carol.token, nil, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/dm-conversations/"+first.ID+"/mark-read", bob.token, nil, nil))
}

func TestReactionsAndPins(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")
	_, general := s.createWorkspace(alice, "Acme")
	msg := &store.Message{ChannelID: general.ID, UserID: alice.user.ID, Content: "pin me"}
	require.NoError(t, s.db.CreateMessage(context.Background(), msg))
	base := "/api/messages/" + msg.ID

	var update chat.ReactionUpdated
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/reactions", alice.token, map[string]string{"emoji": "👍"}, &update))
	require.False(t, update.Removed)

	var grouped map[string][]store.Reaction
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, base+"/reactions", alice.token, nil, &grouped))
	require.Len(t, grouped["👍"], 1)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/reactions", alice.token, map[string]string{"emoji": "👍"}, &update))
	require.True(t, update.Removed)
	require.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, base+"/reactions", alice.token, map[string]string{"emoji": ""}, nil))

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/pin", alice.token, nil, nil))
	var pinned []store.PinnedMessage
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/channels/"+general.ID+"/pinned", alice.token, nil, &pinned))
	require.Len(t, pinned, 1)
	require.Equal(t, "alice", pinned[0].PinnedByUsername)

	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, base+"/unpin", alice.token, nil, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/channels/"+general.ID+"/pinned", alice.token, nil, &pinned))
	require.Empty(t, pinned)
}

func TestStatusPresenceAndUnread(t *testing.T) {
	s := newTestServer(t)
	alice, bob := s.register("alice"), s.register("bob")
	ws, general := s.createWorkspace(alice, "Acme")
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/workspaces/"+ws.ID+"/members", alice.token,
		map[string]string{"userId": bob.user.ID}, nil))

	require.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/api/users/me/status", bob.token,
		map[string]string{"status": "sleeping"}, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodPut, "/api/users/me/status", bob.token,
		map[string]string{"status": "away", "custom_status": "lunch", "status_emoji": "🍜"}, nil))

	var members []store.MemberPresence
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/workspaces/"+ws.ID+"/presence", alice.token, nil, &members))
	require.Len(t, members, 2)
	byName := map[string]store.MemberPresence{}
	for _, m := range members {
		byName[m.Username] = m
	}
	require.Equal(t, "offline", byName["alice"].Status)
	require.Equal(t, "away", byName["bob"].Status)
	require.Equal(t, "lunch", byName["bob"].CustomStatus)

	require.NoError(t, s.db.CreateMessage(context.Background(),
		&store.Message{ChannelID: general.ID, UserID: bob.user.ID, Content: "hello"}))

	unread := func() int {
		var counts []store.UnreadCount
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/workspaces/"+ws.ID+"/unread-counts", alice.token, nil, &counts))
		for _, c := range counts {
			if c.ChannelID == general.ID {
				return c.UnreadCount
			}
		}
		return -1
	}
	require.Equal(t, 1, unread())
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/channels/"+general.ID+"/mark-read", alice.token, nil, nil))
	require.Equal(t, 0, unread())
}

func TestChannelManagement(t *testing.T) {
	s := newTestServer(t)
	alice, bob := s.register("alice"), s.register("bob")
	ws, _ := s.createWorkspace(alice, "Acme")

	require.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/workspaces/"+ws.ID+"/channels", bob.token, nil, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/workspaces/"+ws.ID+"/members", alice.token,
		map[string]string{"userId": bob.user.ID}, nil))

	var secret store.Channel
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/workspaces/"+ws.ID+"/channels", alice.token,
		map[string]any{"name": "Secret", "is_private": true}, &secret))
	require.Equal(t, "secret", secret.Name)
	require.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/workspaces/"+ws.ID+"/channels", alice.token,
		map[string]any{"name": "secret"}, nil))

	var visible []store.Channel
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/workspaces/"+ws.ID+"/channels", bob.token, nil, &visible))
	require.Len(t, visible, 1)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/channels/"+secret.ID+"/members", alice.token,
		map[string]string{"userId": bob.user.ID}, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/workspaces/"+ws.ID+"/channels", bob.token, nil, &visible))
	require.Len(t, visible, 2)

	var workspaces []store.Workspace
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/workspaces", bob.token, nil, &workspaces))
	require.Len(t, workspaces, 1)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, s.ts.URL+"/api/auth/login", http.NoBody)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp
	}

	resp := preflight(testOrigin)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, testOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-File-Metadata")

	resp = preflight("http://evil.example")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{"http://localhost:3000", "HTTPS://Chat.Example.com", "not a url", " "}, logging.Discard())

	cases := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:3000", true},
		{"https://chat.example.com", true},
		{"http://chat.example.com", false},
		{"http://localhost:3001", false},
		{"", false},
		{"not-a-url", false},
		{"http://", false},
	}
	for _, tc := range cases {
		t.Run(tc.origin, func(t *testing.T) {
			require.Equal(t, tc.want, p.allows(tc.origin))
		})
	}

	all := newOriginPolicy([]string{"*"}, logging.Discard())
	require.True(t, all.allows("http://anything.example"))
	require.False(t, all.allows(""))
}

func TestHTTPRateLimit(t *testing.T) {
	pool := &limiterPool{cfg: config.HTTPRateLimitConfig{RPS: 0.001, Burst: 2}}
	h := pool.middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, hit("10.0.0.1:1000"))
	require.Equal(t, http.StatusOK, hit("10.0.0.1:1001"))
	require.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1:1002"))
	require.Equal(t, http.StatusOK, hit("10.0.0.2:1000"))
}

func TestHTTPRateLimitEvictsIdleAddresses(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	pool := &limiterPool{
		cfg:  config.HTTPRateLimitConfig{RPS: 0.001, Burst: 1},
		idle: time.Minute,
		now:  func() time.Time { return now },
	}

	require.True(t, pool.Allow("10.0.0.1"))
	require.True(t, pool.Allow("10.0.0.2"))
	require.Equal(t, 2, pool.size())

	now = now.Add(30 * time.Second)
	require.False(t, pool.Allow("10.0.0.1"))

	now = now.Add(61 * time.Second)
	require.True(t, pool.Allow("10.0.0.3"))
	require.Equal(t, 1, pool.size())

	// An evicted address starts over with a fresh bucket.
	require.True(t, pool.Allow("10.0.0.1"))
	require.Equal(t, 2, pool.size())
}

func TestParseFileMetadata(t *testing.T) {
	raw, err := json.Marshal(map[string]string{
		"dmConversationId": "dm-1",
		"fileName":         encodeFileName("résumé final.pdf"),
	})
	require.NoError(t, err)

	meta, err := parseFileMetadata(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, "dm-1", meta.DMConversationID)
	require.Equal(t, "résumé final.pdf", meta.FileName)

	meta, err = parseFileMetadata(`{"channelId":"c-1","fileName":"plain.txt"}`)
	require.NoError(t, err)
	require.Equal(t, "c-1", meta.ChannelID)
	require.Equal(t, "plain.txt", meta.FileName)

	meta, err = parseFileMetadata(`{"channelId":"c-1"}`)
	require.NoError(t, err)
	require.Equal(t, "file", meta.FileName)

	_, err = parseFileMetadata("")
	require.ErrorIs(t, err, chat.ErrInvalidMessage)
	_, err = parseFileMetadata("{{{")
	require.ErrorIs(t, err, chat.ErrInvalidMessage)
}

func TestSessionToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=q", nil)
	req.Header.Set("Authorization", "Bearer h")
	require.Equal(t, "q", sessionToken(req))

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "bearer h")
	require.Equal(t, "h", sessionToken(req))

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "c"})
	require.Equal(t, "c", sessionToken(req))

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Basic abc")
	require.Empty(t, sessionToken(req))
}

func TestGracefulShutdownWithClients(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice")

	clients := make([]*websocket.Conn, 3)
	for i := range clients {
		conn, _, err := s.dial(alice.token, originHeader(testOrigin))
		require.NoError(t, err)
		clients[i] = conn
	}
	require.Eventually(t, func() bool {
		return s.hub.UserConnections(alice.user.ID) == len(clients)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ShutdownServer(s.ts.Config, time.Second, logging.Discard()))
	require.NoError(t, s.hub.Shutdown(2*time.Second))

	for i, conn := range clients {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, _, err := conn.ReadMessage()
		require.Error(t, err, "client %d still connected after shutdown", i)
	}
	require.Zero(t, s.hub.ConnectionCount())
}
