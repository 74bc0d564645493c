package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/storefront/api/internal/repositories"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// CategoryServiceDeps wires the dependencies required by the category service.
type CategoryServiceDeps struct {
	Categories repositories.CategoryRepository
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type categoryService struct {
	categories repositories.CategoryRepository
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCategoryService constructs a CategoryService validating required dependencies.
func NewCategoryService(deps CategoryServiceDeps) (CategoryService, error) {
	if deps.Categories == nil {
		return nil, errors.New("category service: category repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &categoryService{categories: deps.Categories, logger: logger}, nil
}

func (s *categoryService) List(ctx context.Context) ([]Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, storeError("list categories", err)
	}
	return categories, nil
}

func (s *categoryService) Get(ctx context.Context, categoryID string) (Category, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return Category{}, badRequest("category_required", "categoryId is required")
	}
	category, err := s.categories.Get(ctx, categoryID)
	if err != nil {
		if isRepoNotFound(err) {
			return Category{}, notFound("category_not_found", "Category not found")
		}
		return Category{}, storeError("load category", err)
	}
	return category, nil
}

func (s *categoryService) Upsert(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	id := strings.TrimSpace(cmd.ID)
	if id == "" {
		return Category{}, badRequest("category_required", "categoryId is required")
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Category{}, badRequest("invalid_category", "Category name is required")
	}
	slug := strings.ToLower(strings.TrimSpace(cmd.Slug))
	if slug == "" {
		slug = slugify(name)
	}
	if !slugPattern.MatchString(slug) {
		return Category{}, badRequest("invalid_category", "Category slug may only contain lowercase letters, digits and dashes")
	}

	existing, err := s.categories.List(ctx)
	if err != nil {
		return Category{}, storeError("list categories", err)
	}
	for _, other := range existing {
		if other.ID != id && strings.EqualFold(other.Name, name) {
			return Category{}, badRequest("category_duplicate", "Category name already exists")
		}
	}

	category, err := s.categories.Upsert(ctx, Category{ID: id, Name: name, Slug: slug})
	if err != nil {
		return Category{}, storeError("upsert category", err)
	}
	s.logger(ctx, "catalog.category.upserted", map[string]any{"categoryId": id})
	return category, nil
}

// slugify lowercases the name and joins its alphanumeric runs with dashes.
func slugify(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return strings.Join(fields, "-")
}
