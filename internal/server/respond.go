package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/inland-taipen/teamchat/internal/chat"
	"github.com/inland-taipen/teamchat/internal/store"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, chat.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error. Server-side failures are logged and
// never echo their cause.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request_failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", chat.ErrInvalidMessage)
	}
	return nil
}
