package api

import (
	"encoding/json"
	"net/http"

	"github.com/uticket/backend/internal/domain"
	"github.com/uticket/backend/pkg/response"
	"github.com/uticket/backend/pkg/validator"
	"go.uber.org/zap"
)

type ProfileHandler struct {
	profiles *domain.ProfileService
	logger   *zap.Logger
}

func NewProfileHandler(profiles *domain.ProfileService, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

type ProfileRequest struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	profile, err := h.profiles.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, "get profile", err)
		return
	}
	response.OK(w, profile)
}

func (h *ProfileHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	profile, err := h.profiles.SaveProfile(r.Context(), userID, domain.ProfileParams{
		FullName: validator.SanitizeString(req.FullName, 100),
		Phone:    req.Phone,
		Email:    validator.SanitizeEmail(req.Email),
	})
	if err != nil {
		writeError(w, h.logger, "save profile", err)
		return
	}
	response.OK(w, profile)
}

func (h *ProfileHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	file, contentType, ok := formImage(w, r)
	if !ok {
		return
	}
	defer file.Close()

	url, err := h.profiles.UpdatePhoto(r.Context(), userID, file, contentType)
	if err != nil {
		writeError(w, h.logger, "upload profile photo", err)
		return
	}
	response.OK(w, map[string]string{"profileImageUrl": url})
}

func (h *ProfileHandler) RemovePhoto(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	if err := h.profiles.RemovePhoto(r.Context(), userID); err != nil {
		writeError(w, h.logger, "remove profile photo", err)
		return
	}
	statusOK(w)
}
