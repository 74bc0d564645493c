package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

type pricer struct {
	products repositories.ProductRepository
}

// NewPricer constructs a Pricer reading the live catalog.
func NewPricer(products repositories.ProductRepository) (Pricer, error) {
	if products == nil {
		return nil, errors.New("pricer: product repository is required")
	}
	return &pricer{products: products}, nil
}

// Price resolves every line against the catalog, verifies stock and freezes unit prices.
func (p *pricer) Price(ctx context.Context, lines []CartItem) (PricedSnapshot, error) {
	lines = MergeLines(lines)
	if len(lines) == 0 {
		return PricedSnapshot{}, badRequest("cart_empty", "Your cart is empty")
	}

	snapshot := PricedSnapshot{
		Lines: make([]domain.PricedLine, 0, len(lines)),
		Total: decimal.Zero,
	}
	for _, line := range lines {
		product, err := p.products.Get(ctx, line.ProductID)
		if err != nil {
			if isRepoNotFound(err) {
				return PricedSnapshot{}, notFound("product_not_found", fmt.Sprintf("product(%s) not found", line.ProductID))
			}
			return PricedSnapshot{}, storeError("load product", err)
		}
		if product.Stock < line.Quantity {
			return PricedSnapshot{}, badRequest("insufficient_stock", fmt.Sprintf("%s stock is below your order", product.Name))
		}
		priced := domain.PricedLine{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		}
		snapshot.Lines = append(snapshot.Lines, priced)
		snapshot.Total = snapshot.Total.Add(priced.LineTotal())
	}
	return snapshot, nil
}
