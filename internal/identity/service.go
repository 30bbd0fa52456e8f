package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-orders/internal/users"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

// Service persists the outcome of Resolve.
type Service struct {
	users *users.Repository
	logg  *logger.Logger
	now   func() time.Time
}

// NewService builds an identity resolver backed by the users table.
func NewService(repo *users.Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &Service{users: repo, logg: logg, now: time.Now}, nil
}

// ResolveIdentity finds or creates the user for profile. Repeated and
// concurrent calls for one email converge on a single row.
func (s *Service) ResolveIdentity(ctx context.Context, profile Profile) (*models.User, error) {
	email := NormalizeEmail(profile.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile email is required")
	}
	profile.Email = email

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.merge(ctx, existing, profile)
	}

	candidate, _ := Resolve(nil, profile, s.now())
	created, err := s.users.CreateIfAbsent(ctx, &candidate)
	if err != nil && !users.IsDuplicateEmail(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}
	if err == nil && created {
		if s.logg != nil {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"user_id":  candidate.ID.String(),
				"provider": string(candidate.AuthProvider),
			}), "identity created")
		}
		return &candidate, nil
	}

	// another request created the row first
	existing, err = s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "identity changed concurrently")
	}
	return s.merge(ctx, existing, profile)
}

func (s *Service) merge(ctx context.Context, existing *models.User, profile Profile) (*models.User, error) {
	user, changed := Resolve(existing, profile, s.now())
	if changed {
		if err := s.users.UpdateProfile(ctx, &user); err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, *user.LastLoginAt); err != nil {
		return nil, err
	}
	return &user, nil
}
