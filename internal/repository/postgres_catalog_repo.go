package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/storefront/internal/database"
	"github.com/hitoshi/storefront/internal/model"
)

// PostgresCategoryRepo はPostgreSQLを使用したカテゴリリポジトリ。
type PostgresCategoryRepo struct {
	db *sql.DB
}

// NewPostgresCategoryRepo はPostgresCategoryRepoを生成する。
func NewPostgresCategoryRepo(db *sql.DB) *PostgresCategoryRepo {
	return &PostgresCategoryRepo{db: db}
}

// List は全カテゴリを名前順で返す。
func (r *PostgresCategoryRepo) List(ctx context.Context) ([]*model.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, slug, image, created_at FROM categories ORDER BY name, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*model.Category
	for rows.Next() {
		c := &model.Category{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Image, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *PostgresCategoryRepo) findOne(ctx context.Context, where string, arg any) (*model.Category, error) {
	c := &model.Category{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, image, created_at FROM categories WHERE `+where,
		arg,
	).Scan(&c.ID, &c.Name, &c.Slug, &c.Image, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindByID(ctx context.Context, id string) (*model.Category, error) {
	c, err := r.findOne(ctx, `id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find category by ID: %w", err)
	}
	return c, nil
}

// FindBySlug はスラッグでカテゴリを取得する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindBySlug(ctx context.Context, slug string) (*model.Category, error) {
	c, err := r.findOne(ctx, `slug = $1`, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to find category by slug: %w", err)
	}
	return c, nil
}

// Create はカテゴリを作成する。スラッグ重複時はErrSlugTakenを返す。
func (r *PostgresCategoryRepo) Create(ctx context.Context, c *model.Category) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, slug, image, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Name, c.Slug, c.Image, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", translateSlugConflict(err))
	}
	return nil
}

// Update はカテゴリを更新する。スラッグ重複時はErrSlugTakenを返す。
func (r *PostgresCategoryRepo) Update(ctx context.Context, c *model.Category) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = $2, slug = $3, image = $4 WHERE id = $1`,
		c.ID, c.Name, c.Slug, c.Image,
	)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", translateSlugConflict(err))
	}
	return nil
}

// Delete はカテゴリを削除する。所属商品はCASCADE削除される。
func (r *PostgresCategoryRepo) Delete(ctx context.Context, id string) (bool, error) {
	return deleteRow(ctx, r.db, `DELETE FROM categories WHERE id = $1`, id)
}

// Count はカテゴリ数を返す。
func (r *PostgresCategoryRepo) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM categories`)
}

// PostgresProductRepo はPostgreSQLを使用した商品リポジトリ。
type PostgresProductRepo struct {
	db *sql.DB
}

// NewPostgresProductRepo はPostgresProductRepoを生成する。
func NewPostgresProductRepo(db *sql.DB) *PostgresProductRepo {
	return &PostgresProductRepo{db: db}
}

const productSelect = `SELECT p.id, p.category_id, p.name, p.slug, p.description, p.price, p.stock, p.image,
	       p.created_at, p.updated_at, c.name, c.slug
	FROM products p
	JOIN categories c ON c.id = p.category_id`

func scanProduct(row interface{ Scan(...any) error }) (*model.ProductWithCategory, error) {
	p := &model.ProductWithCategory{}
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.Stock, &p.Image,
		&p.CreatedAt, &p.UpdatedAt, &p.CategoryName, &p.CategorySlug)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresProductRepo) query(ctx context.Context, query string, args ...any) ([]*model.ProductWithCategory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*model.ProductWithCategory
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// List は商品一覧を新しい順で返す。categoryIDが空でなければそのカテゴリに絞り込む。
func (r *PostgresProductRepo) List(ctx context.Context, categoryID string) ([]*model.ProductWithCategory, error) {
	var (
		products []*model.ProductWithCategory
		err      error
	)
	if categoryID == "" {
		products, err = r.query(ctx, productSelect+` ORDER BY p.created_at DESC, p.id`)
	} else {
		products, err = r.query(ctx, productSelect+` WHERE p.category_id = $1 ORDER BY p.created_at DESC, p.id`, categoryID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// ListLatest は新しい順に最大limit件の商品を返す。
func (r *PostgresProductRepo) ListLatest(ctx context.Context, limit int) ([]*model.ProductWithCategory, error) {
	products, err := r.query(ctx, productSelect+` ORDER BY p.created_at DESC, p.id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest products: %w", err)
	}
	return products, nil
}

// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
func (r *PostgresProductRepo) FindByID(ctx context.Context, id string) (*model.ProductWithCategory, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, productSelect+` WHERE p.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return p, nil
}

// FindBySlug はスラッグで商品を取得する。見つからない場合はnilを返す。
func (r *PostgresProductRepo) FindBySlug(ctx context.Context, slug string) (*model.ProductWithCategory, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, productSelect+` WHERE p.slug = $1`, slug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product by slug: %w", err)
	}
	return p, nil
}

// Create は商品を作成する。スラッグ重複時はErrSlugTakenを返す。
func (r *PostgresProductRepo) Create(ctx context.Context, p *model.Product) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (id, category_id, name, slug, description, price, stock, image, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.CategoryID, p.Name, p.Slug, p.Description, p.Price, p.Stock, p.Image, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", translateSlugConflict(err))
	}
	return nil
}

// Update は商品を更新する。スラッグ重複時はErrSlugTakenを返す。
func (r *PostgresProductRepo) Update(ctx context.Context, p *model.Product) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE products
		 SET category_id = $2, name = $3, slug = $4, description = $5, price = $6, stock = $7, image = $8, updated_at = $9
		 WHERE id = $1`,
		p.ID, p.CategoryID, p.Name, p.Slug, p.Description, p.Price, p.Stock, p.Image, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", translateSlugConflict(err))
	}
	return nil
}

// Delete は商品を削除する。削除対象が存在しなかった場合はfalseを返す。
func (r *PostgresProductRepo) Delete(ctx context.Context, id string) (bool, error) {
	return deleteRow(ctx, r.db, `DELETE FROM products WHERE id = $1`, id)
}

// Count は商品数を返す。
func (r *PostgresProductRepo) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM products`)
}

func translateSlugConflict(err error) error {
	if _, ok := database.UniqueViolation(err); ok {
		return ErrSlugTaken
	}
	return err
}

func deleteRow(ctx context.Context, q database.DBTX, query, id string) (bool, error) {
	result, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func countRows(ctx context.Context, q database.DBTX, query string) (int, error) {
	var count int
	if err := q.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}

// compile-time interface check
var (
	_ CategoryRepository = (*PostgresCategoryRepo)(nil)
	_ ProductRepository  = (*PostgresProductRepo)(nil)
)
