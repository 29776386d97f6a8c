package auth

import (
	"context"
	"errors"
	"strings"
)

// Identity errors. Providers translate their own failures into these.
var (
	ErrWrongPassword         = errors.New("wrong password")
	ErrUserNotFound          = errors.New("user not found")
	ErrInvalidEmail          = errors.New("invalid email")
	ErrUserDisabled          = errors.New("user disabled")
	ErrNetwork               = errors.New("network error")
	ErrTooManyRequests       = errors.New("too many requests")
	ErrInvalidCredential     = errors.New("invalid or expired credential")
	ErrEmailInUse            = errors.New("email already in use")
	ErrWeakPassword          = errors.New("weak password")
	ErrEmailDomainNotAllowed = errors.New("email domain not allowed")
)

var userMessages = []struct {
	err error
	msg string
}{
	{ErrWrongPassword, "Incorrect password. Please try again."},
	{ErrUserNotFound, "No account found with this email."},
	{ErrInvalidEmail, "Please enter a valid email address."},
	{ErrUserDisabled, "This account has been disabled."},
	{ErrNetwork, "Network error. Please check your connection."},
	{ErrTooManyRequests, "Too many attempts. Please try again later."},
	{ErrInvalidCredential, "Your credentials are invalid or have expired. Please sign in again."},
	{ErrEmailInUse, "An account with this email already exists."},
	{ErrWeakPassword, "Password must be at least 6 characters."},
	{ErrEmailDomainNotAllowed, "Please use your university email address."},
}

// UserMessage returns the message shown to users for an identity error.
func UserMessage(err error) string {
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return "Something went wrong. Please try again."
}

// Identity is a user authenticated by an IdentityProvider.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	IsNew       bool
}

// IdentityProvider authenticates users.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password, displayName string) (*Identity, error)
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	// SignInWithGoogle exchanges a Google ID token for an identity.
	SignInWithGoogle(ctx context.Context, idToken string) (*Identity, error)
}

// EmailAllowed reports whether email ends with domain, ignoring case. An
// empty domain allows every address.
func EmailAllowed(email, domain string) bool {
	if domain == "" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), strings.ToLower(domain))
}
