package auth

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"

	"github.com/angelmondragon/storefront-orders/internal/identity"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

// TokenVerifier turns a provider id token into a verified profile.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (identity.Profile, error)
}

type validateFunc func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

// GoogleVerifier validates Google-issued id tokens for one OAuth client.
type GoogleVerifier struct {
	clientID string
	validate validateFunc
}

// NewGoogleVerifier builds a verifier for clientID.
func NewGoogleVerifier(clientID string) (*GoogleVerifier, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, fmt.Errorf("google client id is required")
	}
	return &GoogleVerifier{clientID: clientID, validate: idtoken.Validate}, nil
}

func (v *GoogleVerifier) Verify(ctx context.Context, rawToken string) (identity.Profile, error) {
	payload, err := v.validate(ctx, strings.TrimSpace(rawToken), v.clientID)
	if err != nil {
		return identity.Profile{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid id token")
	}
	return profileFromClaims(payload)
}

func profileFromClaims(payload *idtoken.Payload) (identity.Profile, error) {
	if payload == nil || payload.Subject == "" {
		return identity.Profile{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid id token")
	}
	email := claimString(payload.Claims, "email")
	if email == "" {
		return identity.Profile{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "id token has no email")
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return identity.Profile{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "email not verified")
	}
	return identity.Profile{
		Email:      email,
		Name:       claimString(payload.Claims, "name"),
		GivenName:  claimString(payload.Claims, "given_name"),
		FamilyName: claimString(payload.Claims, "family_name"),
		Provider:   enums.AuthProviderGoogle,
		Subject:    payload.Subject,
	}, nil
}

func claimString(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}
