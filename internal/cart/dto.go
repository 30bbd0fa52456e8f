package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
)

// LineView is the API shape of one cart line.
type LineView struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	AddedAt   time.Time       `json:"added_at"`
	InStock   int             `json:"in_stock"`
	Available bool            `json:"available"`
}

// Summary is the read model of a whole cart.
type Summary struct {
	Lines       []LineView      `json:"lines"`
	TotalItems  int             `json:"total_items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	IsEmpty     bool            `json:"is_empty"`

	// AllAvailable is false for an empty cart.
	AllAvailable bool `json:"all_available"`
}

// NewLineView maps a persisted line to its API shape.
func NewLineView(line models.CartLine) LineView {
	return LineView{
		ID:        line.ID,
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		UnitPrice: line.PriceAtAdd,
		LineTotal: line.LineTotal(),
		AddedAt:   line.CreatedAt,
	}
}

// Summarize folds lines into totals.
func Summarize(lines []models.CartLine) Summary {
	summary := Summary{Lines: make([]LineView, 0, len(lines)), TotalAmount: decimal.Zero}
	for _, line := range lines {
		summary.Lines = append(summary.Lines, NewLineView(line))
		summary.TotalItems += line.Quantity
		summary.TotalAmount = summary.TotalAmount.Add(line.LineTotal())
	}
	summary.IsEmpty = len(lines) == 0
	return summary
}

// MarkAvailability compares each line with the given stock levels. Products
// absent from levels count as sold out.
func (s *Summary) MarkAvailability(levels map[uuid.UUID]int) {
	s.AllAvailable = !s.IsEmpty
	for i := range s.Lines {
		line := &s.Lines[i]
		line.InStock = levels[line.ProductID]
		line.Available = line.Quantity <= line.InStock
		if !line.Available {
			s.AllAvailable = false
		}
	}
}
