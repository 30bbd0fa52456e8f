// Package stock owns every mutation of products.stock.
package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

const tracerName = "github.com/angelmondragon/storefront-orders/internal/stock"

// ConflictError marks a transient write conflict on a product row.
// The caller is expected to restart its transaction.
type ConflictError struct {
	ProductID uuid.UUID
	Err       error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("stock conflict on product %s: %v", e.ProductID, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err carries a ConflictError.
func IsConflict(err error) (*ConflictError, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

type reservationRecorder interface {
	Reservation(op, result string)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Ledger reserves and releases product stock with single guarded statements.
type Ledger struct {
	tx      txRunner
	metrics reservationRecorder
	tracer  trace.Tracer
}

// NewLedger builds a ledger. tx is only needed for Restock; metrics may be nil.
func NewLedger(tx txRunner, metrics reservationRecorder) *Ledger {
	return &Ledger{tx: tx, metrics: metrics, tracer: otel.Tracer(tracerName)}
}

// TryReserve decrements stock by qty when at least qty units remain.
// It returns false, without touching the row, when stock is insufficient.
func (l *Ledger) TryReserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (ok bool, err error) {
	ctx, span := l.start(ctx, "stock.TryReserve", productID, qty)
	defer func() { l.finish(span, "reserve", ok, err) }()

	if qty < 1 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		UpdateColumns(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, classify(productID, res.Error, "reserve stock")
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	if err := ensureExists(ctx, tx, productID); err != nil {
		return false, err
	}
	return false, nil
}

// Release returns qty units to the product. Only dependency failures surface.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (err error) {
	ctx, span := l.start(ctx, "stock.Release", productID, qty)
	defer func() { l.finish(span, "release", err == nil, err) }()

	if qty < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumns(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return classify(productID, res.Error, "release stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

// Restock adds qty units in its own transaction and returns the new level.
func (l *Ledger) Restock(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	if l.tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger has no transaction runner")
	}
	var level int
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := l.Release(ctx, tx, productID, qty); err != nil {
			return err
		}
		return tx.Model(&models.Product{}).
			Select("stock").
			Where("id = ?", productID).
			Scan(&level).Error
	})
	if err != nil {
		return 0, err
	}
	return level, nil
}

// Level reads the current stock of a product.
func Level(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (int, error) {
	var product models.Product
	err := tx.WithContext(ctx).Select("id", "stock").Where("id = ?", productID).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read stock")
	}
	return product.Stock, nil
}

func ensureExists(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return classify(productID, err, "check product")
	}
	if count == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

func classify(productID uuid.UUID, err error, action string) error {
	if dbpkg.IsRetryableConflict(err) {
		return &ConflictError{ProductID: productID, Err: err}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func (l *Ledger) start(ctx context.Context, name string, productID uuid.UUID, qty int) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("product.id", productID.String()),
		attribute.Int("stock.quantity", qty),
	))
}

func (l *Ledger) finish(span trace.Span, op string, ok bool, err error) {
	result := "granted"
	switch {
	case err != nil:
		result = "error"
		if _, conflict := IsConflict(err); conflict {
			result = "conflict"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !ok:
		result = "insufficient"
	}
	if op == "release" && err == nil {
		result = "released"
	}
	span.SetAttributes(attribute.String("stock.result", result))
	span.End()
	if l.metrics != nil {
		l.metrics.Reservation(op, result)
	}
}
