package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stash/internal/interfaces"
	"github.com/ternarybob/stash/internal/models"
	"github.com/ternarybob/stash/internal/services/auth"
	"github.com/ternarybob/stash/internal/storage/sqlite"
)

// UserHandler serves login and user management endpoints.
type UserHandler struct {
	users  interfaces.UserService
	auth   interfaces.AuthService
	logger arbor.ILogger
}

// NewUserHandler creates the handler.
func NewUserHandler(users interfaces.UserService, authService interfaces.AuthService, logger arbor.ILogger) *UserHandler {
	return &UserHandler{users: users, auth: authService, logger: logger}
}

// LoginHandler handles POST /users/login. On success the session token
// is set as the auth cookie and returned in the body.
func (h *UserHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var login models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&login); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid login request")
		return
	}

	response, err := h.auth.GenerateToken(r.Context(), &login)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}

	expires, _ := time.Parse(time.RFC3339, response.ExpiresAt)
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    auth.CookieValue(response.Token),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	WriteJSON(w, http.StatusOK, response)
}

// CreateHandler handles POST /users/create.
func (h *UserHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.NewUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid user request")
		return
	}

	user, err := h.users.Create(r.Context(), &req)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, user)
}

// UserRoutes dispatches /users/{id}/get, /users/{id}/update and
// /users/{id}/delete.
func (h *UserHandler) UserRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/users/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	id, err := uuid.Parse(parts[0])
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	switch parts[1] {
	case "get":
		if !RequireMethod(w, r, http.MethodGet) {
			return
		}
		user, err := h.users.Get(r.Context(), id)
		if err != nil {
			h.writeUserError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, user)
	case "update":
		if !RequireMethod(w, r, http.MethodPost) {
			return
		}
		var req models.UpdateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid user request")
			return
		}
		user, err := h.users.Update(r.Context(), id, &req)
		if err != nil {
			if errors.Is(err, sqlite.ErrUserNotFound) {
				WriteError(w, http.StatusNotFound, "User not found")
				return
			}
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, user)
	case "delete":
		if !RequireMethod(w, r, http.MethodDelete) {
			return
		}
		if err := h.users.Delete(r.Context(), id); err != nil {
			h.writeUserError(w, err)
			return
		}
		WriteSuccess(w, "User deleted.")
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

func (h *UserHandler) writeUserError(w http.ResponseWriter, err error) {
	if errors.Is(err, sqlite.ErrUserNotFound) {
		WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	h.logger.Warn().Err(err).Msg("User operation failed")
	WriteError(w, http.StatusInternalServerError, err.Error())
}
