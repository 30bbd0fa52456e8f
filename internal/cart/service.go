package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	product "github.com/angelmondragon/storefront-orders/internal/products"
	dbpkg "github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

// Service exposes cart mutations for the current identity.
type Service interface {
	AddOrMerge(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.CartLine, error)
	UpdateQuantity(ctx context.Context, userID, lineID uuid.UUID, qty int) (*models.CartLine, error)
	RemoveLine(ctx context.Context, userID, lineID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
	Summary(ctx context.Context, userID uuid.UUID) (*Summary, error)
}

type service struct {
	repo     Repository
	products product.Lookup
}

// NewService builds a cart service.
func NewService(repo Repository, products product.Lookup) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	return &service{repo: repo, products: products}, nil
}

// AddOrMerge adds qty of the product, merging into an existing line.
// The first add locks the unit price; merges keep it.
func (s *service) AddOrMerge(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.CartLine, error) {
	if err := validateQuantity(qty); err != nil {
		return nil, err
	}
	snap, err := s.products.Lookup(ctx, productID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByUserAndProduct(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.merge(ctx, existing, qty, snap)
	}

	if qty > snap.Stock {
		return nil, pkgerrors.InsufficientStock(productID)
	}
	line := &models.CartLine{
		UserID:     userID,
		ProductID:  productID,
		Quantity:   qty,
		PriceAtAdd: snap.Price,
	}
	if err := s.repo.Create(ctx, line); err != nil {
		if !isDuplicateLine(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart line")
		}
		// lost a race with a concurrent add of the same product
		existing, ferr := s.repo.FindByUserAndProduct(ctx, userID, productID)
		if ferr != nil {
			return nil, ferr
		}
		if existing == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "cart line changed concurrently")
		}
		return s.merge(ctx, existing, qty, snap)
	}
	return line, nil
}

func (s *service) merge(ctx context.Context, existing *models.CartLine, qty int, snap product.Snapshot) (*models.CartLine, error) {
	if existing.Quantity+qty > snap.Stock {
		return nil, pkgerrors.InsufficientStock(existing.ProductID)
	}
	total, err := s.repo.IncrementQuantity(ctx, existing.ID, qty)
	if err != nil {
		return nil, err
	}
	existing.Quantity = total
	return existing, nil
}

func (s *service) UpdateQuantity(ctx context.Context, userID, lineID uuid.UUID, qty int) (*models.CartLine, error) {
	if err := validateQuantity(qty); err != nil {
		return nil, err
	}
	line, err := s.ownedLine(ctx, userID, lineID)
	if err != nil {
		return nil, err
	}
	snap, err := s.products.Lookup(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}
	if qty > snap.Stock {
		return nil, pkgerrors.InsufficientStock(line.ProductID)
	}
	if err := s.repo.UpdateQuantity(ctx, line.ID, qty); err != nil {
		return nil, err
	}
	line.Quantity = qty
	return line, nil
}

func (s *service) RemoveLine(ctx context.Context, userID, lineID uuid.UUID) error {
	line, err := s.ownedLine(ctx, userID, lineID)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, line.ID)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	_, err := s.repo.DeleteByUser(ctx, userID)
	return err
}

// Summary totals the cart and flags lines the catalog can no longer cover.
// The flags are advisory; checkout still reserves under its own guard.
func (s *service) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	lines, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	levels := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		snap, err := s.products.Lookup(ctx, line.ProductID)
		switch {
		case err == nil:
			levels[line.ProductID] = snap.Stock
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			levels[line.ProductID] = 0
		default:
			return nil, err
		}
	}
	summary := Summarize(lines)
	summary.MarkAvailability(levels)
	return &summary, nil
}

func (s *service) ownedLine(ctx context.Context, userID, lineID uuid.UUID) (*models.CartLine, error) {
	line, err := s.repo.FindByID(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if line.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cart line belongs to another user")
	}
	return line, nil
}

func isDuplicateLine(err error) bool {
	return dbpkg.IsUniqueViolation(err, UniqueUserProduct) || dbpkg.IsUniqueViolation(err, sqliteUserProduct)
}

func validateQuantity(qty int) error {
	if qty < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": qty})
	}
	return nil
}
