package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category は商品カテゴリを表す。
type Category struct {
	ID        string
	Name      string
	Slug      string
	Image     string
	CreatedAt time.Time
}

// Product は販売商品を表す。
// Descriptionはサニタイズ済みのHTMLとして保存される。
type Product struct {
	ID          string
	CategoryID  string
	Name        string
	Slug        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Image       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductWithCategory は商品とカテゴリ名を結合した構造体。
type ProductWithCategory struct {
	Product
	CategoryName string
	CategorySlug string
}

// CartItem はカート内の1商品を表す。
type CartItem struct {
	ID        string
	CartID    string
	ProductID string
	Quantity  int
	CreatedAt time.Time
}

// CartLine はカート明細と商品情報を結合した構造体。
type CartLine struct {
	CartItem
	ProductName  string
	ProductSlug  string
	ProductImage string
	Price        decimal.Decimal
}

// Total は明細の小計（価格×数量）を返す。
func (l CartLine) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartTotal はカート明細の合計金額を返す。
func CartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return total
}

// OrderStatus は注文の処理状態を表す。
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// IsValid は状態が定義済みの値かどうかを返す。
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// ShippingInfo はチェックアウト時に入力される配送先情報。
type ShippingInfo struct {
	FullName string
	Address  string
	City     string
	Phone    string
}

// Order は確定した注文を表す。配送先情報は注文時点のスナップショット。
type Order struct {
	ID         string
	AccountID  string
	Shipping   ShippingInfo
	TotalPrice decimal.Decimal
	Status     OrderStatus
	CreatedAt  time.Time
}

// OrderItem は注文明細を表す。Priceは注文時点の価格であり、商品の現在価格とは独立する。
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string // 商品削除後は空文字
	ProductName string
	Price       decimal.Decimal
	Quantity    int
}

// Total は明細の小計を返す。
func (i OrderItem) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderWithItems は注文と明細を結合した構造体。
type OrderWithItems struct {
	Order
	Items []OrderItem
}

// DashboardStats は管理ダッシュボードの集計値。
type DashboardStats struct {
	TotalProducts   int
	TotalCategories int
	TotalOrders     int
	ActiveCustomers int
	TotalRevenue    decimal.Decimal
	RecentOrders    []*Order
}
