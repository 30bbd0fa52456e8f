package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/api/responses"
	"github.com/angelmondragon/storefront-orders/api/validators"
	product "github.com/angelmondragon/storefront-orders/internal/products"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

type restocker interface {
	Restock(ctx context.Context, productID uuid.UUID, qty int) (product.Snapshot, error)
}

type restockRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=1000000"`
}

// AdminRestock adds units to a product's stock through the stock ledger.
func AdminRestock(svc restocker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := validators.PathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload restockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, err := svc.Restock(r.Context(), productID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"product_id": productID.String(),
				"added":      payload.Quantity,
				"stock":      snapshot.Stock,
			})
			logg.Info(ctx, "product.restocked")
		}
		responses.WriteSuccess(w, snapshot)
	}
}
