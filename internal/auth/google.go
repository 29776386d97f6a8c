package auth

import (
	"context"

	"google.golang.org/api/idtoken"
)

// GoogleUser is the identity asserted by a Google ID token.
type GoogleUser struct {
	GoogleID      string
	Email         string
	EmailVerified bool
	Name          string
}

// GoogleAuthVerifier validates Google ID tokens against the configured
// OAuth client IDs.
type GoogleAuthVerifier struct {
	clientIDs []string
	validate  func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewGoogleAuthVerifier(clientIDs []string) *GoogleAuthVerifier {
	return &GoogleAuthVerifier{clientIDs: clientIDs, validate: idtoken.Validate}
}

// VerifyIDToken accepts the token if any configured client ID is its audience.
func (v *GoogleAuthVerifier) VerifyIDToken(ctx context.Context, token string) (*GoogleUser, error) {
	var payload *idtoken.Payload
	for _, clientID := range v.clientIDs {
		p, err := v.validate(ctx, token, clientID)
		if err == nil {
			payload = p
			break
		}
	}
	if payload == nil {
		return nil, ErrInvalidCredential
	}

	sub, _ := payload.Claims["sub"].(string)
	email, _ := payload.Claims["email"].(string)
	if sub == "" || email == "" {
		return nil, ErrInvalidCredential
	}
	user := &GoogleUser{GoogleID: sub, Email: email}
	user.EmailVerified, _ = payload.Claims["email_verified"].(bool)
	user.Name, _ = payload.Claims["name"].(string)
	return user, nil
}

func (v *GoogleAuthVerifier) IsConfigured() bool {
	return len(v.clientIDs) > 0 && v.clientIDs[0] != ""
}
