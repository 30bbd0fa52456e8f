package product_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	product "github.com/angelmondragon/storefront-orders/internal/products"
	"github.com/angelmondragon/storefront-orders/internal/stock"
	"github.com/angelmondragon/storefront-orders/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

func newService(t *testing.T) (*product.Service, *product.Repository, func(name, price string, qty int) uuid.UUID) {
	t.Helper()
	client := dbtest.NewSQLite(t)
	repo := product.NewRepository(client.DB())
	svc, err := product.NewService(repo, stock.NewLedger(client, nil))
	require.NoError(t, err)
	seed := func(name, price string, qty int) uuid.UUID {
		return dbtest.SeedProduct(t, client.DB(), name, price, qty).ID
	}
	return svc, repo, seed
}

func TestLookup(t *testing.T) {
	svc, _, seed := newService(t)
	id := seed("mug", "12.50", 4)

	snap, err := svc.Lookup(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "mug", snap.Name)
	assert.Equal(t, "12.5", snap.Price.String())
	assert.Equal(t, 4, snap.Stock)

	_, err = svc.Lookup(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRestock(t *testing.T) {
	svc, _, seed := newService(t)
	id := seed("mug", "12.50", 1)

	snap, err := svc.Restock(context.Background(), id, 9)
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Stock)

	_, err = svc.Restock(context.Background(), id, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Restock(context.Background(), uuid.New(), 3)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestFindByIDs(t *testing.T) {
	_, repo, seed := newService(t)
	a := seed("a", "1.00", 1)
	b := seed("b", "2.00", 2)

	found, err := repo.FindByIDs(context.Background(), []uuid.UUID{a, b, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Equal(t, 2, found[b].Stock)
}
