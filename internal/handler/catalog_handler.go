package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storefront/internal/catalog"
	"github.com/hitoshi/storefront/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	Home(ctx context.Context) (*catalog.Home, error)
	ListProducts(ctx context.Context, categorySlug string) (*catalog.ProductList, error)
	GetProduct(ctx context.Context, slug string) (*model.ProductWithCategory, error)
}

// CatalogHandler は商品閲覧のHTTPハンドラー。ログイン不要。
type CatalogHandler struct {
	service CatalogServiceInterface
	present presenter
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface, media MediaURLResolver) *CatalogHandler {
	return &CatalogHandler{
		service: service,
		present: presenter{media: media},
	}
}

type homeResponse struct {
	Featured   []productResponse  `json:"featured"`
	Categories []categoryResponse `json:"categories"`
}

// Home はトップページ用の商品とカテゴリ一覧を返す。
// GET /api/home
func (h *CatalogHandler) Home(w http.ResponseWriter, r *http.Request) {
	home, err := h.service.Home(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, homeResponse{
		Featured:   h.present.products(home.Featured),
		Categories: h.present.categories(home.Categories),
	})
}

type productListResponse struct {
	Category   *categoryResponse  `json:"category,omitempty"`
	Products   []productResponse  `json:"products"`
	Categories []categoryResponse `json:"categories"`
}

// ListProducts は商品一覧を返す。categoryクエリでカテゴリのスラッグを指定すると絞り込む。
// GET /api/products?category={slug}
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListProducts(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := productListResponse{
		Products:   h.present.products(list.Products),
		Categories: h.present.categories(list.Categories),
	}
	if list.Category != nil {
		c := h.present.category(list.Category)
		resp.Category = &c
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProduct は商品詳細を返す。
// GET /api/products/{slug}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.productWithCategory(product))
}
