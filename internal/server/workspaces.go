package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/inland-taipen/teamchat/internal/chat"
	"github.com/inland-taipen/teamchat/internal/store"
)

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "workspace name is required")
		return
	}

	user := currentUser(r)
	ws, general, err := s.store.CreateWorkspace(r.Context(), strings.TrimSpace(req.Name), req.Description, user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("workspace_created", "id", ws.ID, "owner", user.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"workspace": ws, "general_channel": general})
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListWorkspaces(r.Context(), currentUser(r).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*store.Workspace{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleAddWorkspaceMember lets an existing member invite another user.
func (s *Server) handleAddWorkspaceMember(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["id"]
	if err := s.chat.AuthorizeWorkspace(r.Context(), currentUser(r).ID, workspaceID); err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if _, err := s.store.GetUser(r.Context(), req.UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.AddWorkspaceMember(r.Context(), workspaceID, req.UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	workspaceID := mux.Vars(r)["id"]
	if err := s.chat.AuthorizeWorkspace(r.Context(), user.ID, workspaceID); err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.store.ListChannels(r.Context(), workspaceID, user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*store.Channel{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	workspaceID := mux.Vars(r)["id"]
	if err := s.chat.AuthorizeWorkspace(r.Context(), user.ID, workspaceID); err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		IsPrivate   bool   `json:"is_private"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" {
		writeError(w, http.StatusBadRequest, "channel name is required")
		return
	}

	ch, err := s.store.CreateChannel(r.Context(), workspaceID, name, req.Description, req.IsPrivate, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "channel name already taken")
			return
		}
		s.fail(w, r, err)
		return
	}
	s.log.Info("channel_created", "id", ch.ID, "workspace", workspaceID, "private", ch.IsPrivate)
	writeJSON(w, http.StatusCreated, ch)
}

// handleAddChannelMember adds a workspace member to a channel the caller can
// already see.
func (s *Server) handleAddChannelMember(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["id"]
	if err := s.chat.AuthorizeChannel(r.Context(), currentUser(r).ID, channelID); err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	ch, err := s.store.GetChannel(r.Context(), channelID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.chat.AuthorizeWorkspace(r.Context(), req.UserID, ch.WorkspaceID); err != nil {
		if errors.Is(err, chat.ErrForbidden) {
			writeError(w, http.StatusBadRequest, "user is not a member of the workspace")
			return
		}
		s.fail(w, r, err)
		return
	}
	if err := s.store.AddChannelMember(r.Context(), channelID, req.UserID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleCreateDM(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	user := currentUser(r)
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if req.UserID == user.ID {
		writeError(w, http.StatusBadRequest, "cannot start a conversation with yourself")
		return
	}
	if _, err := s.store.GetUser(r.Context(), req.UserID); err != nil {
		s.fail(w, r, err)
		return
	}

	conv, err := s.store.CreateDMConversation(r.Context(), user.ID, req.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleListDMs(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListDMConversations(r.Context(), currentUser(r).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*store.DMConversation{}
	}
	writeJSON(w, http.StatusOK, list)
}
