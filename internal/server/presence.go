package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status       string `json:"status"`
		CustomStatus string `json:"custom_status"`
		StatusEmoji  string `json:"status_emoji"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.chat.Presence.SetStatus(r.Context(), currentUser(r).ID, req.Status, req.CustomStatus, req.StatusEmoji)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleWorkspacePresence(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["id"]
	if err := s.chat.AuthorizeWorkspace(r.Context(), currentUser(r).ID, workspaceID); err != nil {
		s.fail(w, r, err)
		return
	}
	members, err := s.store.ListWorkspacePresence(r.Context(), workspaceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) handleMarkChannelRead(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	channelID := mux.Vars(r)["id"]
	if err := s.chat.AuthorizeChannel(r.Context(), user.ID, channelID); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.MarkChannelRead(r.Context(), user.ID, channelID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMarkDMRead(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	conversationID := mux.Vars(r)["id"]
	if err := s.chat.AuthorizeDM(r.Context(), user.ID, conversationID); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.MarkDMRead(r.Context(), user.ID, conversationID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleUnreadCounts(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	workspaceID := mux.Vars(r)["id"]
	if err := s.chat.AuthorizeWorkspace(r.Context(), user.ID, workspaceID); err != nil {
		s.fail(w, r, err)
		return
	}
	counts, err := s.store.UnreadCounts(r.Context(), workspaceID, user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
