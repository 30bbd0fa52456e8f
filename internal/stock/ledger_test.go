package stock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

type recorder struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *recorder) Reservation(op, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[op+":"+result]++
}

func TestTryReserveDecrementsWhenAvailable(t *testing.T) {
	client := dbtest.NewSQLite(t)
	rec := &recorder{}
	ledger := NewLedger(client, rec)
	product := dbtest.SeedProduct(t, client.DB(), "widget", "10.00", 5)
	ctx := context.Background()

	ok, err := ledger.TryReserve(ctx, client.DB(), product.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, dbtest.Stock(t, client.DB(), product.ID))
	assert.Equal(t, 1, rec.calls["reserve:granted"])
}

func TestTryReserveInsufficientLeavesStock(t *testing.T) {
	client := dbtest.NewSQLite(t)
	rec := &recorder{}
	ledger := NewLedger(client, rec)
	product := dbtest.SeedProduct(t, client.DB(), "widget", "10.00", 2)

	ok, err := ledger.TryReserve(context.Background(), client.DB(), product.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, dbtest.Stock(t, client.DB(), product.ID))
	assert.Equal(t, 1, rec.calls["reserve:insufficient"])
}

func TestTryReserveExactStock(t *testing.T) {
	client := dbtest.NewSQLite(t)
	ledger := NewLedger(client, nil)
	product := dbtest.SeedProduct(t, client.DB(), "widget", "1.00", 4)

	ok, err := ledger.TryReserve(context.Background(), client.DB(), product.ID, 4)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, dbtest.Stock(t, client.DB(), product.ID))
}

func TestTryReserveUnknownProduct(t *testing.T) {
	client := dbtest.NewSQLite(t)
	ledger := NewLedger(client, nil)

	_, err := ledger.TryReserve(context.Background(), client.DB(), uuid.New(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestTryReserveRejectsNonPositiveQuantity(t *testing.T) {
	client := dbtest.NewSQLite(t)
	ledger := NewLedger(client, nil)
	product := dbtest.SeedProduct(t, client.DB(), "widget", "1.00", 4)

	_, err := ledger.TryReserve(context.Background(), client.DB(), product.ID, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, 4, dbtest.Stock(t, client.DB(), product.ID))
}

func TestReleaseRestoresStock(t *testing.T) {
	client := dbtest.NewSQLite(t)
	ledger := NewLedger(client, nil)
	product := dbtest.SeedProduct(t, client.DB(), "widget", "1.00", 1)
	ctx := context.Background()

	require.NoError(t, ledger.Release(ctx, client.DB(), product.ID, 4))
	assert.Equal(t, 5, dbtest.Stock(t, client.DB(), product.ID))

	err := ledger.Release(ctx, client.DB(), uuid.New(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRestockReturnsNewLevel(t *testing.T) {
	client := dbtest.NewSQLite(t)
	ledger := NewLedger(client, nil)
	product := dbtest.SeedProduct(t, client.DB(), "widget", "1.00", 2)

	level, err := ledger.Restock(context.Background(), product.ID, 8)
	require.NoError(t, err)
	assert.Equal(t, 10, level)
}

func TestReservationRolledBackWithTransaction(t *testing.T) {
	client := dbtest.NewSQLite(t)
	ledger := NewLedger(client, nil)
	product := dbtest.SeedProduct(t, client.DB(), "widget", "1.00", 3)
	ctx := context.Background()

	boom := errors.New("boom")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := ledger.TryReserve(ctx, tx, product.ID, 3)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, dbtest.Stock(t, client.DB(), product.ID))
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	dbtest.Each(t, reservationRace)
}

func reservationRace(t *testing.T, client *db.Client) {
	ledger := NewLedger(client, nil)
	product := dbtest.SeedProduct(t, client.DB(), "widget", "1.00", 7)
	ctx := context.Background()

	const workers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		granted  int
		failures []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var ok bool
			err := client.WithTx(ctx, func(tx *gorm.DB) error {
				var err error
				ok, err = ledger.TryReserve(ctx, tx, product.ID, 1)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures = append(failures, err)
			case ok:
				granted++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, 7, granted)
	assert.Zero(t, dbtest.Stock(t, client.DB(), product.ID))
}

// A reservation racing an uncommitted one for the last unit must wait on the
// row lock and then observe the committed stock, not the snapshot it started with.
func TestReservationWaitsForInFlightReservation(t *testing.T) {
	client := dbtest.NewPostgres(t)
	ledger := NewLedger(client, nil)
	product := dbtest.SeedProduct(t, client.DB(), "last-unit", "1.00", 1)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	first := client.DB().WithContext(ctx).Begin()
	require.NoError(t, first.Error)
	defer first.Rollback()
	ok, err := ledger.TryReserve(ctx, first, product.ID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	type result struct {
		ok  bool
		err error
	}
	second := make(chan result, 1)
	go func() {
		var ok bool
		err := client.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			ok, err = ledger.TryReserve(ctx, tx, product.ID, 1)
			return err
		})
		second <- result{ok: ok, err: err}
	}()

	select {
	case res := <-second:
		t.Fatalf("second reservation finished while the first was open: %+v", res)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, first.Commit().Error)

	res := <-second
	require.NoError(t, res.err)
	assert.False(t, res.ok)
	assert.Zero(t, dbtest.Stock(t, client.DB(), product.ID))
}

func TestIsConflict(t *testing.T) {
	id := uuid.New()
	wrapped := pkgerrors.Wrap(pkgerrors.CodeInternal, &ConflictError{ProductID: id, Err: errors.New("database is locked")}, "checkout")

	conflict, ok := IsConflict(wrapped)
	require.True(t, ok)
	assert.Equal(t, id, conflict.ProductID)

	_, ok = IsConflict(errors.New("plain"))
	assert.False(t, ok)
}

func TestClassifyRetryableConflict(t *testing.T) {
	id := uuid.New()
	err := classify(id, errors.New("database is locked"), "reserve stock")
	conflict, ok := IsConflict(err)
	require.True(t, ok)
	assert.Equal(t, id, conflict.ProductID)

	err = classify(id, errors.New("disk I/O error"), "reserve stock")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
