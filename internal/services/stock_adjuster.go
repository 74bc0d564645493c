package services

import (
	"context"
	"errors"

	"github.com/storefront/api/internal/repositories"
)

type stockAdjuster struct {
	products repositories.ProductRepository
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewStockAdjuster constructs a StockAdjuster. It performs one conditional decrement per line and
// relies on the caller to invoke it at most once per order.
func NewStockAdjuster(products repositories.ProductRepository, logger func(ctx context.Context, event string, fields map[string]any)) (StockAdjuster, error) {
	if products == nil {
		return nil, errors.New("stock adjuster: product repository is required")
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &stockAdjuster{products: products, logger: logger}, nil
}

func (a *stockAdjuster) Decrement(ctx context.Context, lines []OrderItem) {
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		product, err := a.products.DecrementStock(ctx, line.ProductID, line.Quantity)
		switch {
		case err == nil:
			a.logger(ctx, "stock.decremented", map[string]any{
				"productId": line.ProductID,
				"quantity":  line.Quantity,
				"remaining": product.Stock,
			})
		case isRepoConflict(err):
			a.logger(ctx, "stock.decrement.shortfall", map[string]any{
				"productId": line.ProductID,
				"quantity":  line.Quantity,
				"available": product.Stock,
			})
		default:
			a.logger(ctx, "stock.decrement.failed", map[string]any{
				"productId": line.ProductID,
				"quantity":  line.Quantity,
				"error":     err.Error(),
			})
		}
	}
}
