package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/inland-taipen/teamchat/internal/store"
)

const sessionTTL = 7 * 24 * time.Hour

const minPasswordLength = 6

type ctxKey int

const (
	userKey ctxKey = iota
	tokenKey
)

// sessionToken finds the session token in, in order, the query string, an
// Authorization bearer header, the X-Session-Id header or the session cookie.
func sessionToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if t := r.Header.Get("X-Session-Id"); t != "" {
		return t
	}
	if c, err := r.Cookie("session"); err == nil {
		return c.Value
	}
	return ""
}

// authenticate resolves the request's session to a user.
func (s *Server) authenticate(r *http.Request) (*store.User, string, error) {
	token := sessionToken(r)
	if token == "" {
		return nil, "", store.ErrNotFound
	}
	u, err := s.store.UserBySession(r.Context(), token)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// requireAuth rejects requests without a live session with 401.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, token, err := s.authenticate(r)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				msg := "invalid or expired session"
				if sessionToken(r) == "" {
					msg = "authentication required"
				}
				writeError(w, http.StatusUnauthorized, msg)
				return
			}
			s.fail(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userKey, u)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(r *http.Request) *store.User {
	u, _ := r.Context().Value(userKey).(*store.User)
	return u
}

type authResponse struct {
	User      *store.User `json:"user"`
	SessionID string      `json:"sessionId"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "all fields are required")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	u, err := s.store.CreateUser(r.Context(), strings.TrimSpace(req.Username), req.Email, req.Password, "")
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		s.fail(w, r, err)
		return
	}
	sess, err := s.store.CreateSession(r.Context(), u.ID, sessionTTL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("user_registered", "user", u.ID)
	writeJSON(w, http.StatusCreated, authResponse{User: u, SessionID: sess.ID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	u, err := s.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.fail(w, r, err)
		return
	}
	sess, err := s.store.CreateSession(r.Context(), u.ID, sessionTTL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: u, SessionID: sess.ID})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := r.Context().Value(tokenKey).(string)
	if err := s.store.DeleteSession(r.Context(), token); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]*store.User{"user": currentUser(r)})
}
