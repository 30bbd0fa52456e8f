// Package identity reconciles externally authenticated profiles with stored users.
package identity

import (
	"strings"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

// Profile is what an identity provider tells us about the caller.
type Profile struct {
	Email      string
	Name       string
	GivenName  string
	FamilyName string
	Provider   enums.AuthProvider
	Subject    string
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Resolve merges profile into existing without touching storage. A nil
// existing yields a new customer. Federation fields are only filled where
// absent; last login always moves to now. The bool reports whether anything
// besides last login changed.
func Resolve(existing *models.User, profile Profile, now time.Time) (models.User, bool) {
	first, last := names(profile)
	loginAt := now.UTC()

	if existing == nil {
		user := models.User{
			Email:        NormalizeEmail(profile.Email),
			FirstName:    first,
			LastName:     last,
			Role:         enums.UserRoleCustomer,
			AuthProvider: provider(profile),
			LastLoginAt:  &loginAt,
		}
		if subject := strings.TrimSpace(profile.Subject); subject != "" {
			user.ProviderSubject = &subject
		}
		return user, true
	}

	user := *existing
	changed := false
	if subject := strings.TrimSpace(profile.Subject); subject != "" && user.ProviderSubject == nil {
		user.ProviderSubject = &subject
		user.AuthProvider = provider(profile)
		changed = true
	}
	if user.FirstName == "" && first != "" {
		user.FirstName = first
		changed = true
	}
	if user.LastName == "" && last != "" {
		user.LastName = last
		changed = true
	}
	user.LastLoginAt = &loginAt
	return user, changed
}

func provider(profile Profile) enums.AuthProvider {
	if profile.Provider.IsValid() {
		return profile.Provider
	}
	return enums.AuthProviderLocal
}

func names(profile Profile) (string, string) {
	first := strings.TrimSpace(profile.GivenName)
	last := strings.TrimSpace(profile.FamilyName)
	if first != "" || last != "" {
		return first, last
	}
	parts := strings.Fields(profile.Name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
