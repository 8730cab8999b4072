package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/storefront/internal/clock"
	"github.com/hitoshi/storefront/internal/media"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/security"
)

const (
	recentOrdersLimit = 5
	maxNameLength     = 200
	maxSlugLength     = 200
)

// NUMERIC(10,2)の上限
var maxPrice = decimal.New(1, 8)

var slugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

// ActiveCounter は有効アカウント数を返す。
type ActiveCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// ImageImporter は外部URLの画像を取り込む。
type ImageImporter interface {
	Import(ctx context.Context, folder, rawURL string) (string, error)
}

// CategoryInput はカテゴリの作成・更新入力。
// Imageがnilの場合、更新時は既存の画像を維持する。
type CategoryInput struct {
	Name  string
	Slug  string
	Image io.Reader
}

// ProductInput は商品の作成・更新入力。
// 画像はImage（アップロード）がImageURLより優先される。
type ProductInput struct {
	CategoryID  string
	Name        string
	Slug        string
	Description string
	Price       string
	Stock       int
	Image       io.Reader
	ImageURL    string
}

// Service は管理パネルのサービス層。
type Service struct {
	accounts   ActiveCounter
	categories repository.CategoryRepository
	products   repository.ProductRepository
	orders     repository.OrderRepository
	sanitizer  security.DescriptionSanitizer
	uploader   media.Uploader
	importer   ImageImporter
	clock      clock.Clock
}

// NewService はServiceを生成する。
func NewService(
	accounts ActiveCounter,
	categories repository.CategoryRepository,
	products repository.ProductRepository,
	orders repository.OrderRepository,
	sanitizer security.DescriptionSanitizer,
	uploader media.Uploader,
	importer ImageImporter,
	clk clock.Clock,
) *Service {
	return &Service{
		accounts:   accounts,
		categories: categories,
		products:   products,
		orders:     orders,
		sanitizer:  sanitizer,
		uploader:   uploader,
		importer:   importer,
		clock:      clk,
	}
}

// Dashboard は管理ダッシュボードの集計値を返す。
func (s *Service) Dashboard(ctx context.Context, staff Staff) (*model.DashboardStats, error) {
	if err := staff.check(); err != nil {
		return nil, err
	}

	stats := &model.DashboardStats{}
	var err error
	if stats.TotalProducts, err = s.products.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	if stats.TotalCategories, err = s.categories.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	if stats.ActiveCustomers, err = s.accounts.CountActive(ctx); err != nil {
		return nil, fmt.Errorf("failed to count active accounts: %w", err)
	}
	if stats.TotalOrders, stats.TotalRevenue, err = s.orders.Totals(ctx); err != nil {
		return nil, fmt.Errorf("failed to sum orders: %w", err)
	}
	if stats.RecentOrders, err = s.orders.ListAll(ctx, recentOrdersLimit); err != nil {
		return nil, fmt.Errorf("failed to list recent orders: %w", err)
	}
	return stats, nil
}

// --- カテゴリ ---

// ListCategories は全カテゴリを返す。
func (s *Service) ListCategories(ctx context.Context, staff Staff) ([]*model.Category, error) {
	if err := staff.check(); err != nil {
		return nil, err
	}
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// CreateCategory はカテゴリを作成する。
func (s *Service) CreateCategory(ctx context.Context, staff Staff, in CategoryInput) (*model.Category, error) {
	if err := staff.check(); err != nil {
		return nil, err
	}
	name, slug, err := validateNameSlug(in.Name, in.Slug)
	if err != nil {
		return nil, err
	}

	c := &model.Category{
		ID:        uuid.New().String(),
		Name:      name,
		Slug:      slug,
		CreatedAt: s.clock.Now(),
	}
	if in.Image != nil {
		if c.Image, err = s.saveUpload(ctx, media.FolderCategories, in.Image); err != nil {
			return nil, err
		}
	}

	if err := s.categories.Create(ctx, c); err != nil {
		return nil, mapSlugError(err, slug, "failed to create category")
	}
	slog.Info("category created", slog.String("staff_id", staff.accountID), slog.String("category_id", c.ID))
	return c, nil
}

// UpdateCategory はカテゴリを更新する。
func (s *Service) UpdateCategory(ctx context.Context, staff Staff, id string, in CategoryInput) (*model.Category, error) {
	if err := staff.check(); err != nil {
		return nil, err
	}
	name, slug, err := validateNameSlug(in.Name, in.Slug)
	if err != nil {
		return nil, err
	}

	c, err := s.categories.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find category: %w", err)
	}
	if c == nil {
		return nil, model.NewCategoryNotFoundError(id)
	}

	c.Name = name
	c.Slug = slug
	if in.Image != nil {
		if c.Image, err = s.saveUpload(ctx, media.FolderCategories, in.Image); err != nil {
			return nil, err
		}
	}

	if err := s.categories.Update(ctx, c); err != nil {
		return nil, mapSlugError(err, slug, "failed to update category")
	}
	return c, nil
}

// DeleteCategory はカテゴリを削除する。所属商品も削除される。
func (s *Service) DeleteCategory(ctx context.Context, staff Staff, id string) error {
	if err := staff.check(); err != nil {
		return err
	}
	deleted, err := s.categories.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if !deleted {
		return model.NewCategoryNotFoundError(id)
	}
	slog.Info("category deleted", slog.String("staff_id", staff.accountID), slog.String("category_id", id))
	return nil
}

// --- 商品 ---

// ListProducts はカテゴリ名付きで全商品を返す。
func (s *Service) ListProducts(ctx context.Context, staff Staff) ([]*model.ProductWithCategory, error) {
	if err := staff.check(); err != nil {
		return nil, err
	}
	products, err := s.products.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// CreateProduct は商品を作成する。
func (s *Service) CreateProduct(ctx context.Context, staff Staff, in ProductInput) (*model.Product, error) {
	if err := staff.check(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	p := &model.Product{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.applyProductInput(ctx, p, in); err != nil {
		return nil, err
	}

	if err := s.products.Create(ctx, p); err != nil {
		return nil, mapSlugError(err, p.Slug, "failed to create product")
	}
	slog.Info("product created", slog.String("staff_id", staff.accountID), slog.String("product_id", p.ID))
	return p, nil
}

// UpdateProduct は商品を更新する。画像が指定されなければ既存の画像を維持する。
func (s *Service) UpdateProduct(ctx context.Context, staff Staff, id string, in ProductInput) (*model.Product, error) {
	if err := staff.check(); err != nil {
		return nil, err
	}

	existing, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	if existing == nil {
		return nil, model.NewProductNotFoundError(id)
	}

	p := existing.Product
	p.UpdatedAt = s.clock.Now()
	if err := s.applyProductInput(ctx, &p, in); err != nil {
		return nil, err
	}

	if err := s.products.Update(ctx, &p); err != nil {
		return nil, mapSlugError(err, p.Slug, "failed to update product")
	}
	return &p, nil
}

// DeleteProduct は商品を削除する。注文明細の商品参照はNULLになる。
func (s *Service) DeleteProduct(ctx context.Context, staff Staff, id string) error {
	if err := staff.check(); err != nil {
		return err
	}
	deleted, err := s.products.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if !deleted {
		return model.NewProductNotFoundError(id)
	}
	slog.Info("product deleted", slog.String("staff_id", staff.accountID), slog.String("product_id", id))
	return nil
}

// applyProductInput は入力を検証してpに反映する。画像の保存は検証がすべて通った後に行う。
func (s *Service) applyProductInput(ctx context.Context, p *model.Product, in ProductInput) error {
	name, slug, err := validateNameSlug(in.Name, in.Slug)
	if err != nil {
		return err
	}
	price, err := parsePrice(in.Price)
	if err != nil {
		return err
	}
	if in.Stock < 0 {
		return model.NewValidationError("stock", "0以上を指定してください")
	}

	category, err := s.categories.FindByID(ctx, in.CategoryID)
	if err != nil {
		return fmt.Errorf("failed to find category: %w", err)
	}
	if category == nil {
		return model.NewValidationError("category_id", "存在しないカテゴリです")
	}

	p.CategoryID = category.ID
	p.Name = name
	p.Slug = slug
	p.Description = s.sanitizer.Sanitize(in.Description)
	p.Price = price
	p.Stock = in.Stock

	switch {
	case in.Image != nil:
		if p.Image, err = s.saveUpload(ctx, media.FolderProducts, in.Image); err != nil {
			return err
		}
	case strings.TrimSpace(in.ImageURL) != "":
		key, err := s.importer.Import(ctx, media.FolderProducts, strings.TrimSpace(in.ImageURL))
		if err != nil {
			slog.Warn("product image import failed",
				slog.String("url", in.ImageURL),
				slog.String("error", err.Error()),
			)
			return model.NewImageImportFailedError(importFailureReason(err))
		}
		p.Image = key
	}
	return nil
}

// --- 注文 ---

// ListOrders は全注文を新しい順で返す。
func (s *Service) ListOrders(ctx context.Context, staff Staff) ([]*model.Order, error) {
	if err := staff.check(); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListAll(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// GetOrder は注文を明細付きで返す。
func (s *Service) GetOrder(ctx context.Context, staff Staff, id string) (*model.OrderWithItems, error) {
	if err := staff.check(); err != nil {
		return nil, err
	}
	o, err := s.orders.FindWithItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	if o == nil {
		return nil, model.NewOrderNotFoundError(id)
	}
	return o, nil
}

// UpdateOrderStatus は注文ステータスを更新する。
func (s *Service) UpdateOrderStatus(ctx context.Context, staff Staff, id string, status model.OrderStatus) error {
	if err := staff.check(); err != nil {
		return err
	}
	if !status.IsValid() {
		return model.NewInvalidOrderStatusError(string(status))
	}
	updated, err := s.orders.UpdateStatus(ctx, id, status)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if !updated {
		return model.NewOrderNotFoundError(id)
	}
	slog.Info("order status updated",
		slog.String("staff_id", staff.accountID),
		slog.String("order_id", id),
		slog.String("status", string(status)),
	)
	return nil
}

// --- 共通 ---

func (s *Service) saveUpload(ctx context.Context, folder string, r io.Reader) (string, error) {
	key, err := media.SaveImage(ctx, s.uploader, folder, r)
	switch {
	case errors.Is(err, media.ErrNotImage):
		return "", model.NewValidationError("image", "JPEG、PNG、GIF、WebPのいずれかを指定してください")
	case errors.Is(err, media.ErrTooLarge):
		return "", model.NewValidationError("image", "5MB以下の画像を指定してください")
	case err != nil:
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	return key, nil
}

func validateNameSlug(name, slug string) (string, string, error) {
	name = strings.TrimSpace(name)
	slug = strings.TrimSpace(slug)
	if name == "" {
		return "", "", model.NewValidationError("name", "必須項目です")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", "", model.NewValidationError("name", fmt.Sprintf("%d文字以内で入力してください", maxNameLength))
	}
	if !slugPattern.MatchString(slug) || len(slug) > maxSlugLength {
		return "", "", model.NewValidationError("slug", "英数字、ハイフン、アンダースコアのみ使用できます")
	}
	return name, slug, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, model.NewValidationError("price", "数値を指定してください")
	}
	if price.IsNegative() {
		return decimal.Zero, model.NewValidationError("price", "0以上を指定してください")
	}
	if !price.Equal(price.Truncate(2)) {
		return decimal.Zero, model.NewValidationError("price", "小数点以下は2桁までです")
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return decimal.Zero, model.NewValidationError("price", "金額が大きすぎます")
	}
	return price, nil
}

func mapSlugError(err error, slug, msg string) error {
	if errors.Is(err, repository.ErrSlugTaken) {
		return model.NewDuplicateSlugError(slug)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// importFailureReason は取り込み失敗の理由をクライアント向けに要約する。
// 内部アドレスなどの詳細は返さない。
func importFailureReason(err error) string {
	switch {
	case errors.Is(err, media.ErrNotImage):
		return "画像ではありません"
	case errors.Is(err, media.ErrTooLarge):
		return "画像が大きすぎます"
	case errors.Is(err, media.ErrURLRejected):
		return "許可されていないURLです"
	default:
		return "取得できませんでした"
	}
}
