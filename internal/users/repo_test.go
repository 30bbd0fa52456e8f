package users_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-orders/internal/users"
	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

func TestCreateDuplicateEmailIsDetected(t *testing.T) {
	dbtest.Each(t, func(t *testing.T, client *db.Client) {
		repo := users.NewRepository(client.DB())
		ctx := context.Background()

		require.NoError(t, repo.Create(ctx, &models.User{Email: "dup@example.com", Role: enums.UserRoleCustomer, AuthProvider: enums.AuthProviderLocal}))
		err := repo.Create(ctx, &models.User{Email: "dup@example.com", Role: enums.UserRoleCustomer, AuthProvider: enums.AuthProviderLocal})
		require.Error(t, err)
		assert.True(t, users.IsDuplicateEmail(err), "got %v", err)
	})
}

func TestIsDuplicateEmailIgnoresOtherConstraints(t *testing.T) {
	assert.False(t, users.IsDuplicateEmail(nil))
	assert.False(t, users.IsDuplicateEmail(errors.New("connection reset")))
	assert.False(t, users.IsDuplicateEmail(&pgconn.PgError{Code: "23505", ConstraintName: "users_pkey", Message: "duplicate key value violates unique constraint"}))
	assert.True(t, users.IsDuplicateEmail(&pgconn.PgError{Code: "23505", ConstraintName: users.UniqueEmail}))
}
