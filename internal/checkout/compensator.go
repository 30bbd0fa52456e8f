package checkout

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/internal/stock"
	dbpkg "github.com/angelmondragon/storefront-orders/pkg/db"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

type reservation struct {
	productID uuid.UUID
	qty       int
}

// compensator tracks the reservations granted during one checkout attempt and
// hands them back when the attempt fails.
type compensator struct {
	stock    stockReserver
	tx       *gorm.DB
	reserved []reservation
}

func (c *compensator) granted(productID uuid.UUID, qty int) {
	c.reserved = append(c.reserved, reservation{productID: productID, qty: qty})
}

// rollback releases granted reservations newest first. The original cause is
// preserved unless a release itself fails. Statement failures leave the
// transaction aborted, so only its rollback can return the stock.
func (c *compensator) rollback(ctx context.Context, cause error) error {
	if len(c.reserved) == 0 || statementFailed(cause) {
		return cause
	}
	var errs error
	for i := len(c.reserved) - 1; i >= 0; i-- {
		r := c.reserved[i]
		errs = multierr.Append(errs, c.stock.Release(ctx, c.tx, r.productID, r.qty))
	}
	c.reserved = nil
	if errs == nil {
		return cause
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, multierr.Combine(cause, errs), "release reservations after failed checkout")
}

func statementFailed(err error) bool {
	if _, ok := stock.IsConflict(err); ok {
		return true
	}
	var taken *orderNumberTaken
	if errors.As(err, &taken) {
		return true
	}
	return pkgerrors.IsCode(err, pkgerrors.CodeDependency) || dbpkg.IsRetryableConflict(err)
}
