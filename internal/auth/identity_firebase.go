package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

// FirebaseIdentity authenticates against Firebase Authentication through the
// Identity Toolkit REST API.
type FirebaseIdentity struct {
	svc    *identitytoolkit.Service
	logger *zap.Logger
}

func NewFirebaseIdentity(ctx context.Context, apiKey string, logger *zap.Logger) (*FirebaseIdentity, error) {
	svc, err := identitytoolkit.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("identity toolkit: %w", err)
	}
	return &FirebaseIdentity{svc: svc, logger: logger}, nil
}

func (f *FirebaseIdentity) SignUp(ctx context.Context, email, password, displayName string) (*Identity, error) {
	resp, err := f.svc.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	}).Context(ctx).Do()
	if err != nil {
		return nil, f.translate("sign up", err)
	}
	return &Identity{UserID: resp.LocalId, Email: resp.Email, DisplayName: resp.DisplayName, IsNew: true}, nil
}

func (f *FirebaseIdentity) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	resp, err := f.svc.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, f.translate("sign in", err)
	}
	return &Identity{UserID: resp.LocalId, Email: resp.Email, DisplayName: resp.DisplayName}, nil
}

func (f *FirebaseIdentity) SignInWithGoogle(ctx context.Context, idToken string) (*Identity, error) {
	body := url.Values{}
	body.Set("id_token", idToken)
	body.Set("providerId", "google.com")
	resp, err := f.svc.Relyingparty.VerifyAssertion(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		PostBody:          body.Encode(),
		RequestUri:        "http://localhost",
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, f.translate("google sign in", err)
	}
	return &Identity{
		UserID:      resp.LocalId,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		IsNew:       resp.IsNewUser,
	}, nil
}

var firebaseErrorCodes = []struct {
	prefix string
	err    error
}{
	{"EMAIL_NOT_FOUND", ErrUserNotFound},
	{"INVALID_PASSWORD", ErrWrongPassword},
	{"USER_DISABLED", ErrUserDisabled},
	{"INVALID_EMAIL", ErrInvalidEmail},
	{"TOO_MANY_ATTEMPTS_TRY_LATER", ErrTooManyRequests},
	{"INVALID_LOGIN_CREDENTIALS", ErrInvalidCredential},
	{"INVALID_IDP_RESPONSE", ErrInvalidCredential},
	{"TOKEN_EXPIRED", ErrInvalidCredential},
	{"EMAIL_EXISTS", ErrEmailInUse},
	{"WEAK_PASSWORD", ErrWeakPassword},
}

// translate maps an Identity Toolkit failure onto the identity errors.
func (f *FirebaseIdentity) translate(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		for _, c := range firebaseErrorCodes {
			if strings.HasPrefix(gerr.Message, c.prefix) {
				return c.err
			}
		}
		if gerr.Code == 429 {
			return ErrTooManyRequests
		}
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return ErrNetwork
	}
	f.logger.Error("identity toolkit call failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}
