package helpers

import (
	"bytes"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
)

// SortByProduct returns a copy of lines ordered by product id. Reserving in
// this order keeps lock acquisition consistent across concurrent checkouts.
func SortByProduct(lines []models.CartLine) []models.CartLine {
	sorted := slices.Clone(lines)
	slices.SortStableFunc(sorted, func(a, b models.CartLine) int {
		return bytes.Compare(a.ProductID[:], b.ProductID[:])
	})
	return sorted
}

// BuildOrderLines snapshots cart lines into order lines and returns the order total.
func BuildOrderLines(lines []models.CartLine) ([]models.OrderLine, decimal.Decimal) {
	out := make([]models.OrderLine, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		subtotal := line.LineTotal()
		out = append(out, models.OrderLine{
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			PriceAtTime: line.PriceAtAdd,
			Subtotal:    subtotal,
		})
		total = total.Add(subtotal)
	}
	return out, total
}
