package services

import (
	"context"
	"testing"
)

func TestCategoryUpsertAndGet(t *testing.T) {
	f := newShopFixture(t)
	svc, err := NewCategoryService(CategoryServiceDeps{Categories: f.registry.Categories()})
	if err != nil {
		t.Fatalf("NewCategoryService: %v", err)
	}
	ctx := context.Background()

	category, err := svc.Upsert(ctx, UpsertCategoryCommand{ID: "kitchen", Name: "Kitchen & Dining"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if category.Slug != "kitchen-dining" {
		t.Fatalf("unexpected slug %q", category.Slug)
	}
	got, err := svc.Get(ctx, "kitchen")
	if err != nil || got.Name != "Kitchen & Dining" {
		t.Fatalf("Get: %+v %v", got, err)
	}

	_, err = svc.Upsert(ctx, UpsertCategoryCommand{ID: "other", Name: "kitchen & dining"})
	expectKind(t, err, ErrBadRequest, "Category name already exists")
	_, err = svc.Upsert(ctx, UpsertCategoryCommand{ID: "bad", Name: "Bad", Slug: "Not A Slug"})
	expectKind(t, err, ErrBadRequest, "")
	_, err = svc.Upsert(ctx, UpsertCategoryCommand{ID: "blank"})
	expectKind(t, err, ErrBadRequest, "Category name is required")
	_, err = svc.Get(ctx, "missing")
	expectKind(t, err, ErrNotFound, "Category not found")

	if _, err := svc.Upsert(ctx, UpsertCategoryCommand{ID: "kitchen", Name: "Kitchen", Slug: "kitchen"}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	all, err := svc.List(ctx)
	if err != nil || len(all) != 1 || all[0].Name != "Kitchen" {
		t.Fatalf("List: %+v %v", all, err)
	}
}

func TestCatalogUpsertRejectsUnknownCategory(t *testing.T) {
	f := newShopFixture(t)
	ctx := context.Background()
	categories, err := NewCategoryService(CategoryServiceDeps{Categories: f.registry.Categories()})
	if err != nil {
		t.Fatalf("NewCategoryService: %v", err)
	}
	catalog, err := NewCatalogService(CatalogServiceDeps{Products: f.registry.Products(), Categories: f.registry.Categories()})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}

	_, err = catalog.UpsertProduct(ctx, UpsertProductCommand{ID: "p1", Name: "Mug", Price: dec("12"), Stock: 1, CategoryID: "kitchen"})
	expectKind(t, err, ErrBadRequest, "Category not found")

	if _, err := categories.Upsert(ctx, UpsertCategoryCommand{ID: "kitchen", Name: "Kitchen"}); err != nil {
		t.Fatalf("Upsert category: %v", err)
	}
	product, err := catalog.UpsertProduct(ctx, UpsertProductCommand{ID: "p1", Name: "Mug", Price: dec("12"), Stock: 1, CategoryID: "kitchen"})
	if err != nil || product.CategoryID != "kitchen" {
		t.Fatalf("UpsertProduct: %+v %v", product, err)
	}
}
