package services

import (
	"context"
	"errors"
	"strings"

	"github.com/storefront/api/internal/repositories"
)

// WishlistServiceDeps wires the dependencies required by the wishlist service.
type WishlistServiceDeps struct {
	Wishlists repositories.WishlistRepository
	Products  repositories.ProductRepository
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type wishlistService struct {
	wishlists repositories.WishlistRepository
	products  repositories.ProductRepository
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewWishlistService constructs a WishlistService validating required dependencies.
func NewWishlistService(deps WishlistServiceDeps) (WishlistService, error) {
	if deps.Wishlists == nil {
		return nil, errors.New("wishlist service: wishlist repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("wishlist service: product repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &wishlistService{wishlists: deps.Wishlists, products: deps.Products, logger: logger}, nil
}

func (s *wishlistService) List(ctx context.Context, accountID string) ([]Product, error) {
	wishlist, err := s.wishlists.Get(ctx, accountID)
	if err != nil {
		return nil, storeError("load wishlist", err)
	}
	return s.resolve(ctx, wishlist)
}

func (s *wishlistService) Add(ctx context.Context, accountID, productID string) ([]Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, badRequest("product_required", "productId is required")
	}
	if _, err := s.products.Get(ctx, productID); err != nil {
		if isRepoNotFound(err) {
			return nil, notFound("product_not_found", "Product not found")
		}
		return nil, storeError("load product", err)
	}
	wishlist, err := s.wishlists.Get(ctx, accountID)
	if err != nil {
		return nil, storeError("load wishlist", err)
	}
	for _, id := range wishlist.ProductIDs {
		if id == productID {
			return nil, badRequest("wishlist_duplicate", "Product already in wishlist")
		}
	}
	wishlist.AccountID = accountID
	wishlist.ProductIDs = append(wishlist.ProductIDs, productID)
	saved, err := s.wishlists.Save(ctx, wishlist)
	if err != nil {
		return nil, storeError("save wishlist", err)
	}
	s.logger(ctx, "wishlist.added", map[string]any{"accountId": accountID, "productId": productID})
	return s.resolve(ctx, saved)
}

func (s *wishlistService) Remove(ctx context.Context, accountID, productID string) ([]Product, error) {
	productID = strings.TrimSpace(productID)
	wishlist, err := s.wishlists.Get(ctx, accountID)
	if err != nil {
		return nil, storeError("load wishlist", err)
	}
	kept := make([]string, 0, len(wishlist.ProductIDs))
	for _, id := range wishlist.ProductIDs {
		if id != productID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(wishlist.ProductIDs) {
		return nil, notFound("wishlist_item_not_found", "Wishlist item not found")
	}
	wishlist.AccountID = accountID
	wishlist.ProductIDs = kept
	saved, err := s.wishlists.Save(ctx, wishlist)
	if err != nil {
		return nil, storeError("save wishlist", err)
	}
	s.logger(ctx, "wishlist.removed", map[string]any{"accountId": accountID, "productId": productID})
	return s.resolve(ctx, saved)
}

// resolve loads the saved products, skipping entries removed from the catalog.
func (s *wishlistService) resolve(ctx context.Context, wishlist Wishlist) ([]Product, error) {
	out := make([]Product, 0, len(wishlist.ProductIDs))
	for _, id := range wishlist.ProductIDs {
		product, err := s.products.Get(ctx, id)
		if err != nil {
			if isRepoNotFound(err) {
				continue
			}
			return nil, storeError("load product", err)
		}
		out = append(out, product)
	}
	return out, nil
}
