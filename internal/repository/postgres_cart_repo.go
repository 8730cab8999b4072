package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/storefront/internal/database"
	"github.com/hitoshi/storefront/internal/model"
)

// PostgresCartRepo はPostgreSQLを使用したカートリポジトリ。
type PostgresCartRepo struct {
	db *sql.DB
}

// NewPostgresCartRepo はPostgresCartRepoを生成する。
func NewPostgresCartRepo(db *sql.DB) *PostgresCartRepo {
	return &PostgresCartRepo{db: db}
}

// AddItem はアカウントのカートに商品を1つ追加する。
// 同一商品の明細はUNIQUE(cart_id, product_id)によるUPSERTで数量を加算するため、
// 同時に追加されても明細は1行に保たれる。
func (r *PostgresCartRepo) AddItem(ctx context.Context, accountID, productID string) (*model.CartItem, bool, error) {
	item := &model.CartItem{}
	newID := uuid.New().String()

	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		var cartID string
		err := tx.QueryRowContext(ctx,
			`INSERT INTO carts (id, account_id) VALUES ($1, $2)
			 ON CONFLICT (account_id) DO UPDATE SET account_id = EXCLUDED.account_id
			 RETURNING id`,
			uuid.New().String(), accountID,
		).Scan(&cartID)
		if err != nil {
			return fmt.Errorf("failed to get or create cart: %w", err)
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO cart_items (id, cart_id, product_id, quantity) VALUES ($1, $2, $3, 1)
			 ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_items.quantity + 1
			 RETURNING id, cart_id, product_id, quantity, created_at`,
			newID, cartID, productID,
		).Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert cart item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return item, item.ID == newID, nil
}

// ListLines はアカウントのカート明細を商品情報付きで追加順に返す。
func (r *PostgresCartRepo) ListLines(ctx context.Context, accountID string) ([]model.CartLine, error) {
	lines, err := listCartLines(ctx, r.db, accountID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}
	return lines, nil
}

// RemoveItem はアカウントのカートから明細を削除する。
func (r *PostgresCartRepo) RemoveItem(ctx context.Context, accountID, itemID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items ci
		 USING carts c
		 WHERE ci.cart_id = c.id AND ci.id = $1 AND c.account_id = $2`,
		itemID, accountID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove cart item: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// listCartLines はカート明細を取得する。forUpdateがtrueの場合は明細行をロックする。
func listCartLines(ctx context.Context, q database.DBTX, accountID string, forUpdate bool) ([]model.CartLine, error) {
	query := `SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.created_at,
	                 p.name, p.slug, p.image, p.price
	          FROM cart_items ci
	          JOIN carts c ON c.id = ci.cart_id
	          JOIN products p ON p.id = ci.product_id
	          WHERE c.account_id = $1
	          ORDER BY ci.created_at, ci.id`
	if forUpdate {
		query += ` FOR UPDATE OF ci`
	}

	rows, err := q.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []model.CartLine
	for rows.Next() {
		var l model.CartLine
		if err := rows.Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity, &l.CreatedAt,
			&l.ProductName, &l.ProductSlug, &l.ProductImage, &l.Price); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// compile-time interface check
var _ CartRepository = (*PostgresCartRepo)(nil)
