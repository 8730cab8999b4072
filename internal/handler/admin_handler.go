package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storefront/internal/admin"
	"github.com/hitoshi/storefront/internal/model"
)

// StaffAuthorizer はログイン中のアカウントから管理操作の権限を得る。
type StaffAuthorizer interface {
	Staff(ctx context.Context, accountID string) (admin.Staff, error)
}

// AdminServiceInterface は管理ハンドラーが必要とするサービスインターフェース。
// 全操作が第1引数に権限を受け取る。
type AdminServiceInterface interface {
	Dashboard(ctx context.Context, staff admin.Staff) (*model.DashboardStats, error)

	ListCategories(ctx context.Context, staff admin.Staff) ([]*model.Category, error)
	CreateCategory(ctx context.Context, staff admin.Staff, in admin.CategoryInput) (*model.Category, error)
	UpdateCategory(ctx context.Context, staff admin.Staff, id string, in admin.CategoryInput) (*model.Category, error)
	DeleteCategory(ctx context.Context, staff admin.Staff, id string) error

	ListProducts(ctx context.Context, staff admin.Staff) ([]*model.ProductWithCategory, error)
	CreateProduct(ctx context.Context, staff admin.Staff, in admin.ProductInput) (*model.Product, error)
	UpdateProduct(ctx context.Context, staff admin.Staff, id string, in admin.ProductInput) (*model.Product, error)
	DeleteProduct(ctx context.Context, staff admin.Staff, id string) error

	ListOrders(ctx context.Context, staff admin.Staff) ([]*model.Order, error)
	GetOrder(ctx context.Context, staff admin.Staff, id string) (*model.OrderWithItems, error)
	UpdateOrderStatus(ctx context.Context, staff admin.Staff, id string, status model.OrderStatus) error
}

// AdminHandler は管理パネルのHTTPハンドラー。
type AdminHandler struct {
	authorizer StaffAuthorizer
	service    AdminServiceInterface
	present    presenter
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(authorizer StaffAuthorizer, service AdminServiceInterface, media MediaURLResolver) *AdminHandler {
	return &AdminHandler{
		authorizer: authorizer,
		service:    service,
		present:    presenter{media: media},
	}
}

// staff はリクエストのログインユーザーから管理権限を得る。得られなければエラーを書き込みfalseを返す。
func (h *AdminHandler) staff(w http.ResponseWriter, r *http.Request) (admin.Staff, bool) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return admin.Staff{}, false
	}
	staff, err := h.authorizer.Staff(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return admin.Staff{}, false
	}
	return staff, true
}

type dashboardResponse struct {
	TotalProducts   int             `json:"total_products"`
	TotalCategories int             `json:"total_categories"`
	TotalOrders     int             `json:"total_orders"`
	ActiveCustomers int             `json:"active_customers"`
	TotalRevenue    string          `json:"total_revenue"`
	RecentOrders    []orderResponse `json:"recent_orders"`
}

// Dashboard は集計値と最近の注文を返す。
// GET /api/admin
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	staff, ok := h.staff(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Dashboard(r.Context(), staff)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		TotalProducts:   stats.TotalProducts,
		TotalCategories: stats.TotalCategories,
		TotalOrders:     stats.TotalOrders,
		ActiveCustomers: stats.ActiveCustomers,
		TotalRevenue:    money(stats.TotalRevenue),
		RecentOrders:    h.present.orders(stats.RecentOrders),
	})
}

// --- カテゴリ ---

// ListCategories はGET /api/admin/categories を処理する。
func (h *AdminHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	staff, ok := h.staff(w, r)
	if !ok {
		return
	}

	categories, err := h.service.ListCategories(r.Context(), staff)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.categories(categories))
}

// CreateCategory はPOST /api/admin/categories を処理する。
func (h *AdminHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	h.saveCategory(w, r, "")
}

// UpdateCategory はPUT /api/admin/categories/{id} を処理する。画像を送らなければ既存の画像を維持する。
func (h *AdminHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	h.saveCategory(w, r, chi.URLParam(r, "id"))
}

func (h *AdminHandler) saveCategory(w http.ResponseWriter, r *http.Request, id string) {
	staff, ok := h.staff(w, r)
	if !ok {
		return
	}

	fields, err := readFormFields(w, r, "image")
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer fields.close()

	in := admin.CategoryInput{
		Name:  fields.get("name"),
		Slug:  fields.get("slug"),
		Image: fields.image(),
	}

	var category *model.Category
	status := http.StatusOK
	if id == "" {
		category, err = h.service.CreateCategory(r.Context(), staff, in)
		status = http.StatusCreated
	} else {
		category, err = h.service.UpdateCategory(r.Context(), staff, id, in)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, status, h.present.category(category))
}

// DeleteCategory はDELETE /api/admin/categories/{id} を処理する。
func (h *AdminHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	staff, ok := h.staff(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteCategory(r.Context(), staff, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- 商品 ---

// ListProducts はGET /api/admin/products を処理する。
func (h *AdminHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	staff, ok := h.staff(w, r)
	if !ok {
		return
	}

	products, err := h.service.ListProducts(r.Context(), staff)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.products(products))
}

// CreateProduct はPOST /api/admin/products を処理する。
// 画像はmultipartのimageフィールド、またはimage_urlで外部URLから取り込む。
func (h *AdminHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "")
}

// UpdateProduct はPUT /api/admin/products/{id} を処理する。
func (h *AdminHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, chi.URLParam(r, "id"))
}

func (h *AdminHandler) saveProduct(w http.ResponseWriter, r *http.Request, id string) {
	staff, ok := h.staff(w, r)
	if !ok {
		return
	}

	fields, err := readFormFields(w, r, "image")
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer fields.close()

	stock, err := fields.int("stock", 0)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	in := admin.ProductInput{
		CategoryID:  fields.get("category_id"),
		Name:        fields.get("name"),
		Slug:        fields.get("slug"),
		Description: fields.get("description"),
		Price:       fields.get("price"),
		Stock:       stock,
		Image:       fields.image(),
		ImageURL:    fields.get("image_url"),
	}

	var product *model.Product
	status := http.StatusOK
	if id == "" {
		product, err = h.service.CreateProduct(r.Context(), staff, in)
		status = http.StatusCreated
	} else {
		product, err = h.service.UpdateProduct(r.Context(), staff, id, in)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, status, h.present.product(product))
}

// DeleteProduct はDELETE /api/admin/products/{id} を処理する。
func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	staff, ok := h.staff(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(r.Context(), staff, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- 注文 ---

// ListOrders はGET /api/admin/orders を処理する。
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	staff, ok := h.staff(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(r.Context(), staff)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.orders(orders))
}

// GetOrder はGET /api/admin/orders/{id} を処理する。
func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	staff, ok := h.staff(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), staff, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.orderDetail(order))
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus は注文ステータスを変更する。
// POST /api/admin/orders/{id}/status
func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	staff, ok := h.staff(w, r)
	if !ok {
		return
	}
	var req orderStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.service.UpdateOrderStatus(r.Context(), staff, id, model.OrderStatus(req.Status)); err != nil {
		handleServiceError(w, err)
		return
	}

	order, err := h.service.GetOrder(r.Context(), staff, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.present.orderDetail(order))
}
