package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

// CartServiceDeps wires the repository dependencies for cart operations.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCartService constructs a CartService validating required dependencies.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, accountID string) (CartView, error) {
	cart, err := s.carts.Get(ctx, strings.TrimSpace(accountID))
	if err != nil {
		return CartView{}, storeError("load cart", err)
	}
	return s.view(ctx, cart)
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	if cmd.Quantity <= 0 {
		return CartView{}, badRequest("invalid_quantity", "Quantity must be a positive integer")
	}
	product, err := s.loadProduct(ctx, cmd.ProductID)
	if err != nil {
		return CartView{}, err
	}

	cart, err := s.carts.Update(ctx, cmd.AccountID, func(cart *domain.Cart) error {
		existing := 0
		idx := cart.Line(product.ID)
		if idx >= 0 {
			existing = cart.Items[idx].Quantity
		}
		if existing+cmd.Quantity > product.Stock {
			return insufficientStockForAdd(product.Stock - existing)
		}
		if idx >= 0 {
			cart.Items[idx].Quantity += cmd.Quantity
		} else {
			cart.Items = append(cart.Items, domain.CartItem{ProductID: product.ID, Quantity: cmd.Quantity})
		}
		cart.Items = MergeLines(cart.Items)
		return nil
	})
	if err != nil {
		return CartView{}, storeError("update cart", err)
	}
	s.logger(ctx, "cart.item.added", map[string]any{
		"accountId": cmd.AccountID,
		"productId": product.ID,
		"quantity":  cmd.Quantity,
	})
	return s.view(ctx, cart)
}

func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error) {
	if cmd.Quantity <= 0 {
		return CartView{}, badRequest("invalid_quantity", "Quantity must be a positive integer")
	}
	product, err := s.loadProduct(ctx, cmd.ProductID)
	if err != nil {
		return CartView{}, err
	}

	cart, err := s.carts.Update(ctx, cmd.AccountID, func(cart *domain.Cart) error {
		idx := cart.Line(product.ID)
		if idx < 0 {
			return notFound("cart_item_not_found", "Cart item not found")
		}
		if cmd.Quantity > product.Stock {
			return badRequest("insufficient_stock", fmt.Sprintf("Not enough stock. Only %d available", max(product.Stock, 0)))
		}
		cart.Items[idx].Quantity = cmd.Quantity
		cart.Items = MergeLines(cart.Items)
		return nil
	})
	if err != nil {
		return CartView{}, storeError("update cart", err)
	}
	return s.view(ctx, cart)
}

func (s *cartService) RemoveItem(ctx context.Context, accountID, productID string) (CartView, error) {
	productID = strings.TrimSpace(productID)
	cart, err := s.carts.Update(ctx, accountID, func(cart *domain.Cart) error {
		idx := cart.Line(productID)
		if idx < 0 {
			return notFound("cart_item_not_found", "Cart item not found")
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return nil
	})
	if err != nil {
		return CartView{}, storeError("update cart", err)
	}
	return s.view(ctx, cart)
}

func (s *cartService) ClearCart(ctx context.Context, accountID string) error {
	if err := s.carts.Clear(ctx, accountID); err != nil {
		return storeError("clear cart", err)
	}
	return nil
}

func (s *cartService) loadProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, badRequest("invalid_product", "productId is required")
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Product{}, notFound("product_not_found", "Product not found")
		}
		return Product{}, storeError("load product", err)
	}
	return product, nil
}

func (s *cartService) view(ctx context.Context, cart Cart) (CartView, error) {
	view := CartView{
		AccountID: cart.AccountID,
		Lines:     make([]CartLineView, 0, len(cart.Items)),
		Subtotal:  decimal.Zero,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		line := CartLineView{ProductID: item.ProductID, Quantity: item.Quantity}
		product, err := s.products.Get(ctx, item.ProductID)
		switch {
		case err == nil:
			line.Name = product.Name
			line.UnitPrice = product.Price
			line.LineTotal = product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			line.Available = true
			view.Subtotal = view.Subtotal.Add(line.LineTotal)
		case isRepoNotFound(err):
			line.UnitPrice = decimal.Zero
			line.LineTotal = decimal.Zero
		default:
			return CartView{}, storeError("load product", err)
		}
		view.Lines = append(view.Lines, line)
	}
	return view, nil
}

func insufficientStockForAdd(remaining int) error {
	if remaining > 0 {
		return badRequest("insufficient_stock", fmt.Sprintf("Not enough stock. Only %d available for you", remaining))
	}
	return badRequest("insufficient_stock", "Not enough stock. out of stock")
}

// MergeLines coalesces lines that reference the same product, keeping first-seen order and dropping
// non-positive quantities.
func MergeLines(items []CartItem) []CartItem {
	merged := make([]CartItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
