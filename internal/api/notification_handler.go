package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/uticket/backend/internal/domain"
	"github.com/uticket/backend/internal/middleware"
	"github.com/uticket/backend/pkg/response"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	service     *domain.NotificationService
	authService *domain.AuthService
	ws          *WebSocketManager
	logger      *zap.Logger
}

func NewNotificationHandler(service *domain.NotificationService, authService *domain.AuthService, ws *WebSocketManager, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		service:     service,
		authService: authService,
		ws:          ws,
		logger:      logger,
	}
}

// Stream upgrades to a websocket that receives the session's notification
// events. Clients acknowledge displayed notifications with
// {"type":"ack","id":"<notification id>"}.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sess, ok := userSession(w, r, h.authService, h.logger)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, sess.ID, sess.UserID)
	h.ws.Register(client)
	go client.WritePump()
	go client.ReadPump(h.ws)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.MarkAsRead(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, "mark notification read", err)
		return
	}
	statusOK(w)
}

func (h *NotificationHandler) UpdateFCMToken(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.Unauthorized(w, "no session")
		return
	}
	var req struct {
		FCMToken string `json:"fcm_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.authService.UpdateFCMToken(r.Context(), sessionID, req.FCMToken); err != nil {
		writeError(w, h.logger, "update fcm token", err)
		return
	}
	statusOK(w)
}

type PreferencesRequest struct {
	NotificationsEnabled *bool `json:"notificationsEnabled"`
}

type PreferencesResponse struct {
	NotificationsEnabled bool `json:"notificationsEnabled"`
}

// GetPreferences reports the caller's notification setting. A store failure
// reports the default (enabled).
func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	enabled, err := h.service.NotificationsEnabled(r.Context(), userID)
	if err != nil {
		h.logger.Warn("failed to read notification preference", zap.String("user_id", userID), zap.Error(err))
	}
	response.OK(w, PreferencesResponse{NotificationsEnabled: enabled})
}

func (h *NotificationHandler) SetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req PreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NotificationsEnabled == nil {
		response.BadRequest(w, "notificationsEnabled is required")
		return
	}
	if err := h.service.SetNotificationsEnabled(r.Context(), userID, *req.NotificationsEnabled); err != nil {
		writeError(w, h.logger, "update notification preference", err)
		return
	}
	response.OK(w, PreferencesResponse{NotificationsEnabled: *req.NotificationsEnabled})
}
