// Package catalog は商品カタログの閲覧機能を提供する。
package catalog

import (
	"context"
	"fmt"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// featuredLimit はトップページに表示する商品数。
const featuredLimit = 4

// Home はトップページの表示内容。
type Home struct {
	Featured   []*model.ProductWithCategory
	Categories []*model.Category
}

// ProductList は商品一覧の表示内容。
// Categoryはカテゴリで絞り込んだ場合のみ設定される。
type ProductList struct {
	Products   []*model.ProductWithCategory
	Categories []*model.Category
	Category   *model.Category
}

// Service はカタログ閲覧のサービス層。
type Service struct {
	categories repository.CategoryRepository
	products   repository.ProductRepository
}

// NewService はServiceを生成する。
func NewService(categories repository.CategoryRepository, products repository.ProductRepository) *Service {
	return &Service{categories: categories, products: products}
}

// Home は新着商品と全カテゴリを返す。
func (s *Service) Home(ctx context.Context) (*Home, error) {
	featured, err := s.products.ListLatest(ctx, featuredLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list featured products: %w", err)
	}
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return &Home{Featured: featured, Categories: categories}, nil
}

// ListProducts は商品一覧を返す。categorySlugが空でなければそのカテゴリに絞り込む。
func (s *Service) ListProducts(ctx context.Context, categorySlug string) (*ProductList, error) {
	result := &ProductList{}

	categoryID := ""
	if categorySlug != "" {
		category, err := s.categories.FindBySlug(ctx, categorySlug)
		if err != nil {
			return nil, fmt.Errorf("failed to find category: %w", err)
		}
		if category == nil {
			return nil, model.NewCategoryNotFoundError(categorySlug)
		}
		result.Category = category
		categoryID = category.ID
	}

	products, err := s.products.List(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	result.Products = products
	result.Categories = categories
	return result, nil
}

// GetProduct はスラッグで商品を取得する。
func (s *Service) GetProduct(ctx context.Context, slug string) (*model.ProductWithCategory, error) {
	product, err := s.products.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	if product == nil {
		return nil, model.NewProductNotFoundError(slug)
	}
	return product, nil
}
