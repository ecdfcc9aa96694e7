package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/justinMonserrat/plop/internal/entity"
	"github.com/justinMonserrat/plop/internal/usecase"

	"github.com/rs/zerolog"
)

type AuthHandler struct {
	authUc usecase.AuthUsecase
	log    zerolog.Logger
}

func NewAuthHandler(authUc usecase.AuthUsecase, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authUc: authUc,
		log:    log.With().Str("component", "http.auth").Logger(),
	}
}

// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req entity.RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	if req.Email == "" || req.Password == "" || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "email, username and password are required"})
		return
	}
	if len(req.Password) < 6 {
		writeJSON(w, http.StatusBadRequest, Response{Message: "password must be at least 6 characters"})
		return
	}
	if len(req.Username) < 3 {
		writeJSON(w, http.StatusBadRequest, Response{Message: "username must be at least 3 characters"})
		return
	}

	authResponse, err := h.authUc.Register(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		message := "internal server error"

		switch {
		case errors.Is(err, usecase.ErrEmailAlreadyTaken):
			status = http.StatusConflict
			message = "email already taken"
		case errors.Is(err, usecase.ErrUsernameAlreadyTaken):
			status = http.StatusConflict
			message = "username already taken"
		default:
			h.log.Error().Err(err).Msg("register failed")
		}

		writeJSON(w, status, Response{Message: message})
		return
	}

	h.setRefreshTokenCookie(w, authResponse.RefreshToken)
	authResponse.RefreshToken = ""

	writeJSON(w, http.StatusCreated, Response{Message: "registration successful", Data: authResponse})
}

// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req entity.LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "email and password are required"})
		return
	}

	authResponse, err := h.authUc.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, Response{Message: "invalid email or password"})
			return
		}
		h.log.Error().Err(err).Msg("login failed")
		writeJSON(w, http.StatusInternalServerError, Response{Message: "internal server error"})
		return
	}

	h.setRefreshTokenCookie(w, authResponse.RefreshToken)
	authResponse.RefreshToken = ""

	writeJSON(w, http.StatusOK, Response{Message: "login successful", Data: authResponse})
}

// POST /auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	refreshToken := h.refreshTokenFrom(r)
	if refreshToken == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "refresh token is required"})
		return
	}

	authResponse, err := h.authUc.RefreshToken(r.Context(), refreshToken)
	if err != nil {
		message := "invalid or expired refresh token"
		switch {
		case errors.Is(err, usecase.ErrInvalidRefreshToken):
			message = "invalid refresh token"
		case errors.Is(err, usecase.ErrExpiredRefreshToken):
			message = "refresh token has expired"
		case errors.Is(err, usecase.ErrRevokedRefreshToken):
			message = "refresh token has been revoked"
		}

		h.clearRefreshTokenCookie(w)
		writeJSON(w, http.StatusUnauthorized, Response{Message: message})
		return
	}

	h.setRefreshTokenCookie(w, authResponse.RefreshToken)
	authResponse.RefreshToken = ""

	writeJSON(w, http.StatusOK, Response{Message: "token refreshed successfully", Data: authResponse})
}

// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if refreshToken := h.refreshTokenFrom(r); refreshToken != "" {
		if err := h.authUc.Logout(r.Context(), refreshToken); err != nil {
			h.log.Warn().Err(err).Msg("logout revoke failed")
		}
	}

	h.clearRefreshTokenCookie(w)
	writeJSON(w, http.StatusOK, Response{Message: "logout successful"})
}

// POST /auth/logout-all
func (h *AuthHandler) LogoutAllDevices(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}

	if err := h.authUc.LogoutAll(r.Context(), user.UserId); err != nil {
		h.log.Error().Err(err).Msg("logout all failed")
		writeJSON(w, http.StatusInternalServerError, Response{Message: "internal server error"})
		return
	}

	h.clearRefreshTokenCookie(w)
	writeJSON(w, http.StatusOK, Response{Message: "logged out from all devices successfully"})
}

// refreshTokenFrom reads the token from the cookie, falling back to the
// request body.
func (h *AuthHandler) refreshTokenFrom(r *http.Request) string {
	if cookie, err := r.Cookie("refresh_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	var req entity.RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		return req.RefreshToken
	}
	return ""
}

func (h *AuthHandler) setRefreshTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // behind TLS termination in production
		SameSite: http.SameSiteLaxMode,
		MaxAge:   30 * 24 * 60 * 60,
	})
}

func (h *AuthHandler) clearRefreshTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
