package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storefront/internal/cart"
	"github.com/hitoshi/storefront/internal/model"
)

// CartServiceInterface はカートハンドラーが必要とするサービスインターフェース。
type CartServiceInterface interface {
	Add(ctx context.Context, accountID, productSlug string) (*cart.AddResult, error)
	View(ctx context.Context, accountID string) (*cart.View, error)
	Remove(ctx context.Context, accountID, itemID string) error
	Checkout(ctx context.Context, accountID string, shipping model.ShippingInfo) (*model.OrderWithItems, error)
}

// CartHandler はカートとチェックアウトのHTTPハンドラー。
type CartHandler struct {
	service CartServiceInterface
	present presenter
}

// NewCartHandler はCartHandlerを生成する。
func NewCartHandler(service CartServiceInterface, media MediaURLResolver) *CartHandler {
	return &CartHandler{
		service: service,
		present: presenter{media: media},
	}
}

// View はカートの明細と合計金額を返す。
// GET /api/cart
func (h *CartHandler) View(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	view, err := h.service.View(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.cart(view.Lines, view.Total))
}

type addToCartResponse struct {
	ItemID   string          `json:"item_id"`
	Quantity int             `json:"quantity"`
	Created  bool            `json:"created"`
	Product  productResponse `json:"product"`
}

// Add は商品をカートに1つ追加する。新しい明細なら201、既存明細の数量を増やした場合は200を返す。
// POST /api/cart/items/{slug}
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Add(r.Context(), userID, chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, addToCartResponse{
		ItemID:   result.Item.ID,
		Quantity: result.Item.Quantity,
		Created:  result.Created,
		Product:  h.present.productWithCategory(result.Product),
	})
}

// Remove はカートから明細を削除する。
// DELETE /api/cart/items/{id}
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Remove(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type checkoutRequest struct {
	FullName string `json:"full_name"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Phone    string `json:"phone"`
}

// Checkout はカートの内容で注文を確定する。
// POST /api/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.service.Checkout(r.Context(), userID, model.ShippingInfo{
		FullName: req.FullName,
		Address:  req.Address,
		City:     req.City,
		Phone:    req.Phone,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.present.orderDetail(order))
}
