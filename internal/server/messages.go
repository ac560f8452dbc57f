package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

func historyLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func (s *Server) handleChannelMessages(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["id"]
	if err := s.chat.AuthorizeChannel(r.Context(), currentUser(r).ID, channelID); err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.store.ListChannelMessages(r.Context(), channelID, historyLimit(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDMMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]
	if err := s.chat.AuthorizeDM(r.Context(), currentUser(r).ID, conversationID); err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.store.ListDMMessages(r.Context(), conversationID, historyLimit(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleThreadReplies(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["id"]
	if _, err := s.chat.AuthorizeMessage(r.Context(), currentUser(r).ID, messageID); err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.store.ListThreadReplies(r.Context(), messageID, historyLimit(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.chat.Dispatcher.Edit(r.Context(), currentUser(r).ID, mux.Vars(r)["id"], req.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Dispatcher.Delete(r.Context(), currentUser(r).ID, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleToggleReaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	update, err := s.chat.Dispatcher.React(r.Context(), currentUser(r).ID, mux.Vars(r)["id"], req.Emoji)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}

func (s *Server) handleListReactions(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["id"]
	if _, err := s.chat.AuthorizeMessage(r.Context(), currentUser(r).ID, messageID); err != nil {
		s.fail(w, r, err)
		return
	}
	grouped, err := s.store.ListReactions(r.Context(), messageID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grouped)
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	pin, err := s.chat.Dispatcher.Pin(r.Context(), currentUser(r).ID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pin)
}

func (s *Server) handleUnpin(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Dispatcher.Unpin(r.Context(), currentUser(r).ID, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleChannelPins(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["id"]
	if err := s.chat.AuthorizeChannel(r.Context(), currentUser(r).ID, channelID); err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.store.ListChannelPins(r.Context(), channelID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
