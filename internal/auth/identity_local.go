package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/uticket/backend/pkg/validator"
)

// Credential is a locally stored account.
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	DisplayName  string
	GoogleID     string
	Disabled     bool
}

// CredentialStore persists local accounts. Lookups return ErrUserNotFound
// for unknown users and CreateCredential returns ErrEmailInUse on conflict.
type CredentialStore interface {
	CreateCredential(ctx context.Context, c *Credential) error
	GetCredentialByEmail(ctx context.Context, email string) (*Credential, error)
	GetCredentialByGoogleID(ctx context.Context, googleID string) (*Credential, error)
	LinkGoogleAccount(ctx context.Context, userID, googleID string) error
}

// LocalIdentity keeps accounts in the service's own database.
type LocalIdentity struct {
	store  CredentialStore
	google *GoogleAuthVerifier
}

func NewLocalIdentity(store CredentialStore, google *GoogleAuthVerifier) *LocalIdentity {
	return &LocalIdentity{store: store, google: google}
}

func (l *LocalIdentity) SignUp(ctx context.Context, email, password, displayName string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validator.ValidateEmail(email) {
		return nil, ErrInvalidEmail
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	c := &Credential{
		UserID:       uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
	}
	if err := l.store.CreateCredential(ctx, c); err != nil {
		return nil, err
	}
	return &Identity{UserID: c.UserID, Email: c.Email, DisplayName: c.DisplayName, IsNew: true}, nil
}

func (l *LocalIdentity) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validator.ValidateEmail(email) {
		return nil, ErrInvalidEmail
	}
	c, err := l.store.GetCredentialByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if c.Disabled {
		return nil, ErrUserDisabled
	}
	if c.PasswordHash == "" {
		// Google-only account
		return nil, ErrInvalidCredential
	}
	if err := verifyPassword(password, c.PasswordHash); err != nil {
		if errors.Is(err, errPasswordMismatch) {
			return nil, ErrWrongPassword
		}
		return nil, err
	}
	return &Identity{UserID: c.UserID, Email: c.Email, DisplayName: c.DisplayName}, nil
}

// SignInWithGoogle finds the account linked to the Google user, links an
// existing account with the same email, or creates a new one.
func (l *LocalIdentity) SignInWithGoogle(ctx context.Context, idToken string) (*Identity, error) {
	if l.google == nil || !l.google.IsConfigured() {
		return nil, ErrInvalidCredential
	}
	gu, err := l.google.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}

	c, err := l.store.GetCredentialByGoogleID(ctx, gu.GoogleID)
	if err == nil {
		if c.Disabled {
			return nil, ErrUserDisabled
		}
		return &Identity{UserID: c.UserID, Email: c.Email, DisplayName: c.DisplayName}, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	email := strings.ToLower(gu.Email)
	c, err = l.store.GetCredentialByEmail(ctx, email)
	switch {
	case err == nil:
		if c.Disabled {
			return nil, ErrUserDisabled
		}
		if err := l.store.LinkGoogleAccount(ctx, c.UserID, gu.GoogleID); err != nil {
			return nil, err
		}
		return &Identity{UserID: c.UserID, Email: c.Email, DisplayName: c.DisplayName}, nil
	case errors.Is(err, ErrUserNotFound):
		c = &Credential{
			UserID:      uuid.NewString(),
			Email:       email,
			DisplayName: gu.Name,
			GoogleID:    gu.GoogleID,
		}
		if err := l.store.CreateCredential(ctx, c); err != nil {
			return nil, err
		}
		return &Identity{UserID: c.UserID, Email: c.Email, DisplayName: c.DisplayName, IsNew: true}, nil
	default:
		return nil, err
	}
}
