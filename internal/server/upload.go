package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/inland-taipen/teamchat/internal/chat"
)

// fileMetadata is the base64 JSON carried in the X-File-Metadata header.
type fileMetadata struct {
	ChannelID        string `json:"channelId"`
	DMConversationID string `json:"dmConversationId"`
	FileName         string `json:"fileName"`
	ContentType      string `json:"contentType"`
	ThreadID         string `json:"threadId"`
}

func parseFileMetadata(header string) (fileMetadata, error) {
	var meta fileMetadata
	if header == "" {
		return meta, fmt.Errorf("%w: missing file metadata", chat.ErrInvalidMessage)
	}
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		// Older clients send the JSON unencoded.
		raw = []byte(header)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, fmt.Errorf("%w: malformed file metadata", chat.ErrInvalidMessage)
	}
	meta.FileName = decodeFileName(meta.FileName)
	return meta, nil
}

// decodeFileName undoes the client's base64(encodeURIComponent(name)),
// falling back to the raw value.
func decodeFileName(encoded string) string {
	if encoded == "" {
		return "file"
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return encoded
	}
	name, err := url.PathUnescape(string(raw))
	if err != nil {
		return encoded
	}
	return name
}

func (s *Server) authorizeTarget(r *http.Request, t chat.Target) error {
	if err := t.Validate(); err != nil {
		return err
	}
	userID := currentUser(r).ID
	if t.ChannelID != "" {
		return s.chat.AuthorizeChannel(r.Context(), userID, t.ChannelID)
	}
	return s.chat.AuthorizeDM(r.Context(), userID, t.DMConversationID)
}

// handleUploadFile stores a raw request body as an attachment and sends it
// as a message through the same path as socket messages.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	meta, err := parseFileMetadata(r.Header.Get("X-File-Metadata"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	target := chat.Target{ChannelID: meta.ChannelID, DMConversationID: meta.DMConversationID}
	if err := s.authorizeTarget(r, target); err != nil {
		s.fail(w, r, err)
		return
	}

	ext := filepath.Ext(filepath.Base(meta.FileName))
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		ext = ".bin"
	}
	saved := uuid.NewString() + ext
	path := filepath.Join(s.cfg.Storage.UploadsDir, saved)

	if err := s.saveUpload(w, r, path); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.log.Error("upload_save_failed", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}

	user := currentUser(r)
	fileURL := s.cfg.Server.PublicBaseURL + "/uploads/" + saved
	view, err := s.chat.Dispatcher.SendUploaded(r.Context(), user.ID, chat.SendInput{
		Target:   target,
		UserID:   user.ID,
		ThreadID: meta.ThreadID,
		FileURL:  fileURL,
		FileName: meta.FileName,
	})
	if err != nil {
		_ = os.Remove(path)
		s.fail(w, r, err)
		return
	}

	s.log.Info("file_uploaded", "user", user.ID, "file", saved, "message", view.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": view,
		"fileUrl": fileURL,
	})
}

func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	body := http.MaxBytesReader(w, r.Body, s.cfg.HTTP.MaxUploadSize)
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
