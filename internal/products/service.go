package product

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

// Snapshot is the read-only product view other modules depend on.
type Snapshot struct {
	ID    uuid.UUID       `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// Lookup resolves a product id to its current price and stock.
type Lookup interface {
	Lookup(ctx context.Context, id uuid.UUID) (Snapshot, error)
}

type restocker interface {
	Restock(ctx context.Context, productID uuid.UUID, qty int) (int, error)
}

// Service exposes catalog reads and admin restock.
type Service struct {
	repo   *Repository
	ledger restocker
}

func NewService(repo *Repository, ledger restocker) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	return &Service{repo: repo, ledger: ledger}, nil
}

func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ID: product.ID, Name: product.Name, Price: product.Price, Stock: product.Stock}, nil
}

// Restock adds qty units through the stock ledger and returns the refreshed snapshot.
func (s *Service) Restock(ctx context.Context, productID uuid.UUID, qty int) (Snapshot, error) {
	if qty < 1 {
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if _, err := s.ledger.Restock(ctx, productID, qty); err != nil {
		return Snapshot{}, err
	}
	return s.Lookup(ctx, productID)
}
