package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/internal/stock"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

type releaseRecorder struct {
	released []uuid.UUID
	failOn   uuid.UUID
}

func (r *releaseRecorder) TryReserve(context.Context, *gorm.DB, uuid.UUID, int) (bool, error) {
	return true, nil
}

func (r *releaseRecorder) Release(_ context.Context, _ *gorm.DB, productID uuid.UUID, _ int) error {
	r.released = append(r.released, productID)
	if productID == r.failOn {
		return errors.New("release failed")
	}
	return nil
}

func TestCompensatorReleasesNewestFirst(t *testing.T) {
	t.Parallel()
	rec := &releaseRecorder{}
	comp := &compensator{stock: rec}
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	comp.granted(a, 1)
	comp.granted(b, 2)
	comp.granted(c, 3)

	cause := pkgerrors.InsufficientStock(uuid.New())
	err := comp.rollback(context.Background(), cause)
	if err != cause {
		t.Fatalf("expected original cause, got %v", err)
	}
	want := []uuid.UUID{c, b, a}
	for i := range want {
		if rec.released[i] != want[i] {
			t.Fatalf("release %d: got %s want %s", i, rec.released[i], want[i])
		}
	}
}

func TestCompensatorAggregatesReleaseFailures(t *testing.T) {
	t.Parallel()
	a := uuid.New()
	rec := &releaseRecorder{failOn: a}
	comp := &compensator{stock: rec}
	comp.granted(a, 1)
	comp.granted(uuid.New(), 1)

	err := comp.rollback(context.Background(), pkgerrors.InsufficientStock(uuid.New()))
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if len(rec.released) != 2 {
		t.Fatalf("expected every reservation to be attempted, got %d", len(rec.released))
	}
}

func TestCompensatorSkipsAbortedTransactions(t *testing.T) {
	t.Parallel()
	rec := &releaseRecorder{}
	comp := &compensator{stock: rec}
	comp.granted(uuid.New(), 1)

	cause := &stock.ConflictError{ProductID: uuid.New(), Err: errors.New("40001")}
	if err := comp.rollback(context.Background(), cause); err != cause {
		t.Fatalf("expected conflict to pass through, got %v", err)
	}
	if len(rec.released) != 0 {
		t.Fatalf("expected no releases, got %d", len(rec.released))
	}
}

func TestExhaustedConflictSurfacesInsufficientStock(t *testing.T) {
	t.Parallel()
	productID := uuid.New()
	err := exhausted(&stock.ConflictError{ProductID: productID, Err: errors.New("database is locked")})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}
