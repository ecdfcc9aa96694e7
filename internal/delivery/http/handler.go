package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/justinMonserrat/plop/infrastructure/blob"
	"github.com/justinMonserrat/plop/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxImageUploadBytes = 10 << 20

type HttpHandler struct {
	convUc    usecase.ConversationUsecase
	msgUc     usecase.MessageUsecase
	notifUc   usecase.NotificationUsecase
	profileUc usecase.ProfileUsecase
	blobs     blob.Store
	log       zerolog.Logger
}

func NewHttpHandler(
	convUc usecase.ConversationUsecase,
	msgUc usecase.MessageUsecase,
	notifUc usecase.NotificationUsecase,
	profileUc usecase.ProfileUsecase,
	blobs blob.Store,
	log zerolog.Logger,
) *HttpHandler {
	return &HttpHandler{
		convUc:    convUc,
		msgUc:     msgUc,
		notifUc:   notifUc,
		profileUc: profileUc,
		blobs:     blobs,
		log:       log.With().Str("component", "http").Logger(),
	}
}

type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// writeError maps usecase errors onto status codes; anything unmapped
// is a 500 with a generic body.
func (h *HttpHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, usecase.ErrConversationNotFound),
		errors.Is(err, usecase.ErrProfileNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, usecase.ErrNotMember):
		status = http.StatusForbidden
		message = err.Error()
	case errors.Is(err, usecase.ErrAlreadyMember):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, usecase.ErrDirectWithSelf),
		errors.Is(err, usecase.ErrGroupNameRequired),
		errors.Is(err, usecase.ErrNotGroup),
		errors.Is(err, usecase.ErrEmptyMessage),
		errors.Is(err, usecase.ErrFollowSelf):
		status = http.StatusBadRequest
		message = err.Error()
	default:
		h.log.Error().Err(err).Msg("request failed")
	}

	writeJSON(w, status, Response{Message: message})
}

// GET /conversations
func (h *HttpHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}

	summaries, err := h.convUc.Index(r.Context(), user.UserId)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: summaries})
}

// POST /conversations/direct
func (h *HttpHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}

	var req struct {
		UserId string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "userId is required"})
		return
	}

	conversationId, err := h.convUc.CreateDirect(r.Context(), user.UserId, req.UserId)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: map[string]string{"conversationId": conversationId}})
}

// POST /conversations/group
func (h *HttpHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}

	var req struct {
		Name      string   `json:"name"`
		MemberIds []string `json:"memberIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	conversationId, err := h.convUc.CreateGroup(r.Context(), user.UserId, req.Name, req.MemberIds)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{Message: "success", Data: map[string]string{"conversationId": conversationId}})
}

// POST /conversations/{conversationId}/members
func (h *HttpHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}
	conversationId := chi.URLParam(r, "conversationId")

	var req struct {
		UserId string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "userId is required"})
		return
	}

	if err := h.convUc.AddMember(r.Context(), conversationId, user.UserId, req.UserId); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success"})
}

// DELETE /conversations/{conversationId}/members
func (h *HttpHandler) LeaveConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}
	conversationId := chi.URLParam(r, "conversationId")

	if err := h.convUc.Leave(r.Context(), conversationId, user.UserId); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success"})
}

// GET /conversations/{conversationId}/members
func (h *HttpHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}
	conversationId := chi.URLParam(r, "conversationId")

	profiles, err := h.convUc.Members(r.Context(), conversationId, user.UserId)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: profiles})
}

// GET /conversations/{conversationId}/messages?page=N
func (h *HttpHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}
	conversationId := chi.URLParam(r, "conversationId")

	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, Response{Message: "invalid page"})
			return
		}
		page = parsed
	}

	messagePage, err := h.msgUc.Page(r.Context(), conversationId, user.UserId, page)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: messagePage})
}

// POST /conversations/{conversationId}/messages
//
// Accepts either a JSON body or multipart/form-data with an optional
// "image" file part.
func (h *HttpHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}
	conversationId := chi.URLParam(r, "conversationId")

	req := usecase.SendMessageRequest{
		ConversationId: conversationId,
		SenderId:       user.UserId,
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImageUploadBytes); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Message: "invalid multipart body"})
			return
		}
		req.Content = r.FormValue("content")
		req.ClientRef = r.FormValue("clientRef")

		file, header, err := r.FormFile("image")
		if err == nil {
			defer file.Close()
			data, readErr := io.ReadAll(io.LimitReader(file, maxImageUploadBytes))
			if readErr != nil {
				writeJSON(w, http.StatusBadRequest, Response{Message: "could not read image"})
				return
			}
			req.Image = data
			req.ImageContentType = header.Header.Get("Content-Type")
		}
	} else {
		var body struct {
			Content   string `json:"content"`
			ClientRef string `json:"clientRef"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
			return
		}
		req.Content = body.Content
		req.ClientRef = body.ClientRef
	}

	message, err := h.msgUc.Send(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{Message: "success", Data: message})
}

// POST /conversations/{conversationId}/read
func (h *HttpHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}
	conversationId := chi.URLParam(r, "conversationId")

	modified, err := h.msgUc.MarkConversationRead(r.Context(), conversationId, user.UserId)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: map[string]int64{"modified": modified}})
}

// GET /notifications
func (h *HttpHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}

	notifications, unread, err := h.notifUc.Recent(r.Context(), user.UserId)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: map[string]any{
		"notifications": notifications,
		"unread":        unread,
	}})
}

// POST /notifications/read
func (h *HttpHandler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}

	var req struct {
		Ids []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	modified, err := h.notifUc.MarkRead(r.Context(), user.UserId, req.Ids)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: map[string]int64{"modified": modified}})
}

// GET /users/{id}
func (h *HttpHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "id")

	profile, err := h.profileUc.Get(r.Context(), userId)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: profile})
}

// GET /users/{id}/following
func (h *HttpHandler) ListFollowing(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "id")

	profiles, err := h.profileUc.Following(r.Context(), userId)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: profiles})
}

// POST /users/{id}/follow
func (h *HttpHandler) Follow(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}
	followeeId := chi.URLParam(r, "id")

	if err := h.profileUc.Follow(r.Context(), user.UserId, followeeId); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success"})
}

// DELETE /users/{id}/follow
func (h *HttpHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}
	followeeId := chi.URLParam(r, "id")

	if err := h.profileUc.Unfollow(r.Context(), user.UserId, followeeId); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success"})
}

// GET /media/{key}
func (h *HttpHandler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	reader, contentType, err := h.blobs.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrBlobNotFound) {
			http.NotFound(w, r)
			return
		}
		h.writeError(w, err)
		return
	}
	defer reader.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	io.Copy(w, reader)
}
