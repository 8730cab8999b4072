package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/storefront/internal/model"
)

// MediaURLResolver はメディアストレージのオブジェクトキーを公開URLに変換する。
type MediaURLResolver interface {
	URL(key string) string
}

// presenter はドメインモデルをJSONレスポンス型に変換する。
type presenter struct {
	media MediaURLResolver
}

func (p presenter) mediaURL(key string) string {
	if key == "" || p.media == nil {
		return ""
	}
	return p.media.URL(key)
}

// money は金額を小数点以下2桁の文字列にする。浮動小数点での丸め誤差を避けるため数値では返さない。
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type accountResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsStaff  bool   `json:"is_staff"`
}

func (p presenter) account(a *model.Account) accountResponse {
	return accountResponse{
		ID:       a.ID,
		Username: a.Username,
		Email:    a.Email,
		IsStaff:  a.CanAdminister(),
	}
}

type profileResponse struct {
	accountResponse
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (p presenter) profile(a *model.AccountWithProfile) profileResponse {
	return profileResponse{
		accountResponse: p.account(&a.Account),
		Phone:           a.Profile.Phone,
		Address:         a.Profile.Address,
		AvatarURL:       p.mediaURL(a.Profile.Avatar),
	}
}

type categoryResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ImageURL string `json:"image_url,omitempty"`
}

func (p presenter) category(c *model.Category) categoryResponse {
	return categoryResponse{
		ID:       c.ID,
		Name:     c.Name,
		Slug:     c.Slug,
		ImageURL: p.mediaURL(c.Image),
	}
}

func (p presenter) categories(cs []*model.Category) []categoryResponse {
	out := make([]categoryResponse, len(cs))
	for i, c := range cs {
		out[i] = p.category(c)
	}
	return out
}

type productResponse struct {
	ID           string    `json:"id"`
	CategoryID   string    `json:"category_id"`
	CategoryName string    `json:"category_name,omitempty"`
	CategorySlug string    `json:"category_slug,omitempty"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Description  string    `json:"description"`
	Price        string    `json:"price"`
	Stock        int       `json:"stock"`
	ImageURL     string    `json:"image_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (p presenter) product(pr *model.Product) productResponse {
	return productResponse{
		ID:          pr.ID,
		CategoryID:  pr.CategoryID,
		Name:        pr.Name,
		Slug:        pr.Slug,
		Description: pr.Description,
		Price:       money(pr.Price),
		Stock:       pr.Stock,
		ImageURL:    p.mediaURL(pr.Image),
		CreatedAt:   pr.CreatedAt,
		UpdatedAt:   pr.UpdatedAt,
	}
}

func (p presenter) productWithCategory(pr *model.ProductWithCategory) productResponse {
	resp := p.product(&pr.Product)
	resp.CategoryName = pr.CategoryName
	resp.CategorySlug = pr.CategorySlug
	return resp
}

func (p presenter) products(ps []*model.ProductWithCategory) []productResponse {
	out := make([]productResponse, len(ps))
	for i, pr := range ps {
		out[i] = p.productWithCategory(pr)
	}
	return out
}

type cartLineResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	ProductSlug string `json:"product_slug"`
	ImageURL    string `json:"image_url,omitempty"`
	Price       string `json:"price"`
	Quantity    int    `json:"quantity"`
	LineTotal   string `json:"line_total"`
}

type cartResponse struct {
	Items []cartLineResponse `json:"items"`
	Total string             `json:"total"`
}

func (p presenter) cart(lines []model.CartLine, total decimal.Decimal) cartResponse {
	items := make([]cartLineResponse, len(lines))
	for i, l := range lines {
		items[i] = cartLineResponse{
			ID:          l.ID,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			ProductSlug: l.ProductSlug,
			ImageURL:    p.mediaURL(l.ProductImage),
			Price:       money(l.Price),
			Quantity:    l.Quantity,
			LineTotal:   money(l.Total()),
		}
	}
	return cartResponse{Items: items, Total: money(total)}
}

type shippingResponse struct {
	FullName string `json:"full_name"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Phone    string `json:"phone"`
}

type orderResponse struct {
	ID         string           `json:"id"`
	AccountID  string           `json:"account_id"`
	Shipping   shippingResponse `json:"shipping"`
	TotalPrice string           `json:"total_price"`
	Status     string           `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
}

type orderItemResponse struct {
	ProductID   string `json:"product_id,omitempty"`
	ProductName string `json:"product_name"`
	Price       string `json:"price"`
	Quantity    int    `json:"quantity"`
	LineTotal   string `json:"line_total"`
}

type orderDetailResponse struct {
	orderResponse
	Items []orderItemResponse `json:"items"`
}

func (p presenter) order(o *model.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		AccountID: o.AccountID,
		Shipping: shippingResponse{
			FullName: o.Shipping.FullName,
			Address:  o.Shipping.Address,
			City:     o.Shipping.City,
			Phone:    o.Shipping.Phone,
		},
		TotalPrice: money(o.TotalPrice),
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
	}
}

func (p presenter) orders(os []*model.Order) []orderResponse {
	out := make([]orderResponse, len(os))
	for i, o := range os {
		out[i] = p.order(o)
	}
	return out
}

func (p presenter) orderDetail(o *model.OrderWithItems) orderDetailResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Price:       money(it.Price),
			Quantity:    it.Quantity,
			LineTotal:   money(it.Total()),
		}
	}
	return orderDetailResponse{orderResponse: p.order(&o.Order), Items: items}
}
