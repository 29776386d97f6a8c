package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/uticket/backend/internal/docstore"
	"github.com/uticket/backend/pkg/validator"
	"go.uber.org/zap"
)

var ErrProfileNotFound = errors.New("profile not found")

// Profile is the users/{uid} document.
type Profile struct {
	UserID               string     `json:"userId" firestore:"-"`
	FullName             string     `json:"fullName" firestore:"fullName"`
	Phone                string     `json:"phone" firestore:"phone"`
	Email                string     `json:"email" firestore:"email"`
	ProfileImageURL      *string    `json:"profileImageUrl,omitempty" firestore:"profileImageUrl"`
	NotificationsEnabled *bool      `json:"notificationsEnabled,omitempty" firestore:"notificationsEnabled"`
	CreatedAt            *time.Time `json:"createdAt,omitempty" firestore:"createdAt"`
}

type ProfileParams struct {
	FullName string
	Phone    string
	Email    string
}

func (p ProfileParams) Validate() validator.ValidationErrors {
	var errs validator.ValidationErrors
	errs.Required("fullName", p.FullName)
	if p.Phone != "" && !validator.ValidatePhone(p.Phone) {
		errs.Add("phone", "invalid phone number")
	}
	if p.Email != "" && !validator.ValidateEmail(p.Email) {
		errs.Add("email", "invalid email address")
	}
	return errs
}

// ProfileService manages user profile documents and photos.
type ProfileService struct {
	store  docstore.Store
	blobs  BlobStore
	logger *zap.Logger
}

func NewProfileService(store docstore.Store, blobs BlobStore, logger *zap.Logger) *ProfileService {
	return &ProfileService{store: store, blobs: blobs, logger: logger}
}

// SaveProfile merges the profile fields into users/{userID}.
func (s *ProfileService) SaveProfile(ctx context.Context, userID string, params ProfileParams) (*Profile, error) {
	if errs := params.Validate(); errs.HasErrors() {
		return nil, errs
	}
	data := map[string]interface{}{
		"fullName": strings.TrimSpace(params.FullName),
		"phone":    params.Phone,
		"email":    params.Email,
	}
	if _, err := s.store.Get(ctx, CollectionUsers, userID); errors.Is(err, docstore.ErrNotFound) {
		data["createdAt"] = docstore.ServerTimestamp
	}
	if err := s.store.Set(ctx, CollectionUsers, userID, data, true); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return s.GetProfile(ctx, userID)
}

func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	doc, err := s.store.Get(ctx, CollectionUsers, userID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	var p Profile
	if err := doc.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	p.UserID = doc.ID()
	return &p, nil
}

func profileImagePath(userID string) string {
	return fmt.Sprintf("profile_images/%s.jpg", userID)
}

// UpdatePhoto replaces the profile photo and returns its URL.
func (s *ProfileService) UpdatePhoto(ctx context.Context, userID string, image io.Reader, contentType string) (string, error) {
	url, err := s.blobs.Put(ctx, profileImagePath(userID), image, contentType)
	if err != nil {
		return "", fmt.Errorf("upload profile photo: %w", err)
	}
	if err := s.store.Set(ctx, CollectionUsers, userID, map[string]interface{}{
		"profileImageUrl": url,
	}, true); err != nil {
		return "", fmt.Errorf("save profile photo url: %w", err)
	}
	return url, nil
}

// RemovePhoto deletes the stored photo and clears profileImageUrl. The blob
// delete is best effort.
func (s *ProfileService) RemovePhoto(ctx context.Context, userID string) error {
	if err := s.blobs.Delete(ctx, profileImagePath(userID)); err != nil {
		s.logger.Warn("failed to delete profile photo", zap.String("user_id", userID), zap.Error(err))
	}
	if err := s.store.Set(ctx, CollectionUsers, userID, map[string]interface{}{
		"profileImageUrl": docstore.Delete,
	}, true); err != nil {
		return fmt.Errorf("clear profile photo url: %w", err)
	}
	return nil
}
