package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storefront/internal/model"
)

// OrderServiceInterface は注文履歴ハンドラーが必要とするサービスインターフェース。
type OrderServiceInterface interface {
	History(ctx context.Context, accountID string) ([]*model.Order, error)
	Get(ctx context.Context, accountID, orderID string) (*model.OrderWithItems, error)
}

// OrderHandler は購入者向け注文履歴のHTTPハンドラー。
type OrderHandler struct {
	service OrderServiceInterface
	present presenter
}

// NewOrderHandler はOrderHandlerを生成する。
func NewOrderHandler(service OrderServiceInterface) *OrderHandler {
	return &OrderHandler{service: service}
}

// List は注文履歴を新しい順で返す。
// GET /api/orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	orders, err := h.service.History(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.orders(orders))
}

// Get は自分の注文の詳細を返す。
// GET /api/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	order, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.orderDetail(order))
}
