package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/storefront/internal/database"
	"github.com/hitoshi/storefront/internal/model"
)

// PostgresOrderRepo はPostgreSQLを使用した注文リポジトリ。
type PostgresOrderRepo struct {
	db *sql.DB
}

// NewPostgresOrderRepo はPostgresOrderRepoを生成する。
func NewPostgresOrderRepo(db *sql.DB) *PostgresOrderRepo {
	return &PostgresOrderRepo{db: db}
}

const orderColumns = `id, account_id, full_name, address, city, phone, total_price, status, created_at`

func scanOrder(row interface{ Scan(...any) error }) (*model.Order, error) {
	o := &model.Order{}
	err := row.Scan(&o.ID, &o.AccountID, &o.Shipping.FullName, &o.Shipping.Address, &o.Shipping.City,
		&o.Shipping.Phone, &o.TotalPrice, &o.Status, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Checkout はカートの内容から注文を作成し、カートを空にする。
// 合計金額は現在の商品価格から計算し、明細には注文時点の価格と商品名を複製する。
func (r *PostgresOrderRepo) Checkout(ctx context.Context, accountID string, shipping model.ShippingInfo, now time.Time) (*model.OrderWithItems, error) {
	result := &model.OrderWithItems{}

	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		lines, err := listCartLines(ctx, tx, accountID, true)
		if err != nil {
			return fmt.Errorf("failed to load cart: %w", err)
		}
		if len(lines) == 0 {
			return ErrCartEmpty
		}

		result.Order = model.Order{
			ID:         uuid.New().String(),
			AccountID:  accountID,
			Shipping:   shipping,
			TotalPrice: model.CartTotal(lines),
			Status:     model.OrderStatusPending,
			CreatedAt:  now,
		}
		o := &result.Order
		_, err = tx.ExecContext(ctx,
			`INSERT INTO orders (`+orderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			o.ID, o.AccountID, o.Shipping.FullName, o.Shipping.Address, o.Shipping.City, o.Shipping.Phone,
			o.TotalPrice, o.Status, o.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for _, l := range lines {
			item := model.OrderItem{
				ID:          uuid.New().String(),
				OrderID:     o.ID,
				ProductID:   l.ProductID,
				ProductName: l.ProductName,
				Price:       l.Price,
				Quantity:    l.Quantity,
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO order_items (id, order_id, product_id, product_name, price, quantity)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				item.ID, item.OrderID, item.ProductID, item.ProductName, item.Price, item.Quantity,
			)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
			result.Items = append(result.Items, item)
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM cart_items WHERE cart_id = $1`,
			lines[0].CartID,
		)
		if err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresOrderRepo) queryOrders(ctx context.Context, query string, args ...any) ([]*model.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListByAccount はアカウントの注文を新しい順で返す。
func (r *PostgresOrderRepo) ListByAccount(ctx context.Context, accountID string) ([]*model.Order, error) {
	orders, err := r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE account_id = $1 ORDER BY created_at DESC, id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders by account: %w", err)
	}
	return orders, nil
}

// ListAll は全注文を新しい順で返す。limitが0以下なら全件。
func (r *PostgresOrderRepo) ListAll(ctx context.Context, limit int) ([]*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id`
	var (
		orders []*model.Order
		err    error
	)
	if limit > 0 {
		orders, err = r.queryOrders(ctx, query+` LIMIT $1`, limit)
	} else {
		orders, err = r.queryOrders(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// FindWithItems は注文と明細を取得する。見つからない場合はnilを返す。
func (r *PostgresOrderRepo) FindWithItems(ctx context.Context, id string) (*model.OrderWithItems, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, price, quantity
		 FROM order_items WHERE order_id = $1 ORDER BY product_name, id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	result := &model.OrderWithItems{Order: *o}
	for rows.Next() {
		var item model.OrderItem
		var productID sql.NullString
		if err := rows.Scan(&item.ID, &item.OrderID, &productID, &item.ProductName, &item.Price, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		item.ProductID = productID.String
		result.Items = append(result.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order items: %w", err)
	}
	return result, nil
}

// UpdateStatus は注文ステータスを更新する。対象が存在しなかった場合はfalseを返す。
func (r *PostgresOrderRepo) UpdateStatus(ctx context.Context, id string, status model.OrderStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Totals は注文数と売上合計を返す。
func (r *PostgresOrderRepo) Totals(ctx context.Context) (int, decimal.Decimal, error) {
	var count int
	var revenue decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_price), 0) FROM orders`,
	).Scan(&count, &revenue)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to sum orders: %w", err)
	}
	return count, revenue, nil
}

// compile-time interface check
var _ OrderRepository = (*PostgresOrderRepo)(nil)
