package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the public view of an authenticated account.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// AuthSession is the persisted record behind a pair of tokens.
type AuthSession struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	DeviceInfo     *string   `json:"device_info,omitempty"`
	IPAddress      *string   `json:"ip_address,omitempty"`
	UserAgent      *string   `json:"user_agent,omitempty"`
	FCMToken       *string   `json:"fcm_token,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Valid reports whether the session can still be used at now.
func (s *AuthSession) Valid(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

// RefreshToken is a stored refresh token hash.
type RefreshToken struct {
	ID        uuid.UUID  `json:"id"`
	UserID    string     `json:"user_id"`
	SessionID uuid.UUID  `json:"session_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
