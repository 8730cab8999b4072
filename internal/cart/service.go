// Package cart はショッピングカートとチェックアウトを提供する。
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/storefront/internal/clock"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// ProductFinder はスラッグで商品を引くインターフェース。
type ProductFinder interface {
	FindBySlug(ctx context.Context, slug string) (*model.ProductWithCategory, error)
}

// AddResult はカート追加の結果。
type AddResult struct {
	Item    *model.CartItem
	Product *model.ProductWithCategory
	Created bool // falseの場合は既存明細の数量を増やした
}

// View はカートの表示内容。
type View struct {
	Lines []model.CartLine
	Total decimal.Decimal
}

// Service はカートのサービス層。
type Service struct {
	carts    repository.CartRepository
	orders   repository.OrderRepository
	products ProductFinder
	clock    clock.Clock
	metrics  metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(
	carts repository.CartRepository,
	orders repository.OrderRepository,
	products ProductFinder,
	clk clock.Clock,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		carts:    carts,
		orders:   orders,
		products: products,
		clock:    clk,
		metrics:  collector,
	}
}

// Add は商品をカートに1つ追加する。同じ商品が既にあれば数量を1増やす。
func (s *Service) Add(ctx context.Context, accountID, productSlug string) (*AddResult, error) {
	product, err := s.products.FindBySlug(ctx, productSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	if product == nil {
		return nil, model.NewProductNotFoundError(productSlug)
	}

	item, created, err := s.carts.AddItem(ctx, accountID, product.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}
	return &AddResult{Item: item, Product: product, Created: created}, nil
}

// View はカートの明細と合計金額を返す。カートが無い場合は空のViewを返す。
func (s *Service) View(ctx context.Context, accountID string) (*View, error) {
	lines, err := s.carts.ListLines(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if lines == nil {
		lines = []model.CartLine{}
	}
	return &View{Lines: lines, Total: model.CartTotal(lines)}, nil
}

// Remove はカートから明細を削除する。他人のカートの明細は存在しないものとして扱う。
func (s *Service) Remove(ctx context.Context, accountID, itemID string) error {
	removed, err := s.carts.RemoveItem(ctx, accountID, itemID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	if !removed {
		return model.NewCartItemNotFoundError(itemID)
	}
	return nil
}

// Checkout はカートの内容で注文を確定し、カートを空にする。
// 在庫の引き当てと決済は行わない。
func (s *Service) Checkout(ctx context.Context, accountID string, shipping model.ShippingInfo) (*model.OrderWithItems, error) {
	shipping, err := normalizeShipping(shipping)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.Checkout(ctx, accountID, shipping, s.clock.Now())
	if errors.Is(err, repository.ErrCartEmpty) {
		return nil, model.NewValidationError("cart", "カートが空です")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to checkout: %w", err)
	}

	s.metrics.RecordOrderPlaced()
	slog.Info("order placed",
		slog.String("user_id", accountID),
		slog.String("order_id", order.ID),
		slog.String("total", order.TotalPrice.StringFixed(2)),
	)
	return order, nil
}

// shippingLimits は配送先項目ごとの最大文字数。
var shippingLimits = []struct {
	field string
	max   int
	get   func(*model.ShippingInfo) *string
}{
	{"full_name", 200, func(s *model.ShippingInfo) *string { return &s.FullName }},
	{"address", 500, func(s *model.ShippingInfo) *string { return &s.Address }},
	{"city", 100, func(s *model.ShippingInfo) *string { return &s.City }},
	{"phone", 32, func(s *model.ShippingInfo) *string { return &s.Phone }},
}

func normalizeShipping(in model.ShippingInfo) (model.ShippingInfo, error) {
	for _, l := range shippingLimits {
		v := l.get(&in)
		*v = strings.TrimSpace(*v)
		if *v == "" {
			return in, model.NewValidationError(l.field, "必須項目です")
		}
		if utf8.RuneCountInString(*v) > l.max {
			return in, model.NewValidationError(l.field, fmt.Sprintf("%d文字以内で入力してください", l.max))
		}
	}
	return in, nil
}
