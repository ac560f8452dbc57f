package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/inland-taipen/teamchat/internal/logging"
)

// SetupRoutes builds the application router: health, the websocket
// endpoint, metrics, uploaded files and the JSON API.
func (s *Server) SetupRoutes() *mux.Router {
	root := mux.NewRouter()
	root.HandleFunc("/", HealthHandler)
	root.HandleFunc("/ws", s.WebSocketHandler)
	root.Handle("/metrics", s.metrics.Handler())
	root.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.cfg.Storage.UploadsDir))))

	api := mux.NewRouter().PathPrefix("/api").Subrouter()
	s.registerAPI(api)
	root.PathPrefix("/api/").Handler(
		s.origins.cors(s.limiters.middleware(logging.Middleware(s.log)(api))))
	return root
}

func (s *Server) registerAPI(r *mux.Router) {
	auth := func(h http.HandlerFunc) http.Handler { return s.requireAuth(h) }

	r.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.Handle("/auth/logout", auth(s.handleLogout)).Methods(http.MethodPost)
	r.Handle("/auth/me", auth(s.handleMe)).Methods(http.MethodGet)

	r.Handle("/workspaces", auth(s.handleCreateWorkspace)).Methods(http.MethodPost)
	r.Handle("/workspaces", auth(s.handleListWorkspaces)).Methods(http.MethodGet)
	r.Handle("/workspaces/{id}/members", auth(s.handleAddWorkspaceMember)).Methods(http.MethodPost)
	r.Handle("/workspaces/{id}/channels", auth(s.handleListChannels)).Methods(http.MethodGet)
	r.Handle("/workspaces/{id}/channels", auth(s.handleCreateChannel)).Methods(http.MethodPost)
	r.Handle("/workspaces/{id}/presence", auth(s.handleWorkspacePresence)).Methods(http.MethodGet)
	r.Handle("/workspaces/{id}/unread-counts", auth(s.handleUnreadCounts)).Methods(http.MethodGet)

	r.Handle("/channels/{id}/members", auth(s.handleAddChannelMember)).Methods(http.MethodPost)
	r.Handle("/channels/{id}/messages", auth(s.handleChannelMessages)).Methods(http.MethodGet)
	r.Handle("/channels/{id}/pinned", auth(s.handleChannelPins)).Methods(http.MethodGet)
	r.Handle("/channels/{id}/mark-read", auth(s.handleMarkChannelRead)).Methods(http.MethodPost)

	r.Handle("/dm-conversations", auth(s.handleCreateDM)).Methods(http.MethodPost)
	r.Handle("/dm-conversations", auth(s.handleListDMs)).Methods(http.MethodGet)
	r.Handle("/dm-conversations/{id}/messages", auth(s.handleDMMessages)).Methods(http.MethodGet)
	r.Handle("/dm-conversations/{id}/mark-read", auth(s.handleMarkDMRead)).Methods(http.MethodPost)

	r.Handle("/messages/upload-file", auth(s.handleUploadFile)).Methods(http.MethodPost)
	r.Handle("/messages/{id}", auth(s.handleEditMessage)).Methods(http.MethodPut)
	r.Handle("/messages/{id}", auth(s.handleDeleteMessage)).Methods(http.MethodDelete)
	r.Handle("/messages/{id}/threads", auth(s.handleThreadReplies)).Methods(http.MethodGet)
	r.Handle("/messages/{id}/reactions", auth(s.handleToggleReaction)).Methods(http.MethodPost)
	r.Handle("/messages/{id}/reactions", auth(s.handleListReactions)).Methods(http.MethodGet)
	r.Handle("/messages/{id}/pin", auth(s.handlePin)).Methods(http.MethodPost)
	r.Handle("/messages/{id}/unpin", auth(s.handleUnpin)).Methods(http.MethodDelete)

	r.Handle("/users/me/status", auth(s.handleSetStatus)).Methods(http.MethodPut)
}
