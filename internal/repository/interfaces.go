// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/storefront/internal/model"
)

// 一意制約違反を呼び出し側が判別するためのエラー。
var (
	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already taken")
	ErrSlugTaken     = errors.New("slug already taken")
	ErrCartEmpty     = errors.New("cart is empty")
)

// AccountRepository はアカウントとプロフィールの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByUsername はユーザー名でアカウントを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Account, error)

	// FindWithProfile はアカウントとプロフィールを結合して取得する。見つからない場合はnilを返す。
	FindWithProfile(ctx context.Context, id string) (*model.AccountWithProfile, error)

	// RunInTx はfnを1つのトランザクション内で実行する。
	// fnがエラーを返した場合はロールバックされる。
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx AccountTx) error) error

	// Activate はcodeが現在の確認コードと一致する確認待ちアカウントを有効化し、OTPを消去する。
	// 有効化した場合のみtrueを返す。
	Activate(ctx context.Context, id, code string, now time.Time) (bool, error)

	// DeleteByID は指定IDのアカウントを削除する。
	// プロフィールはCASCADE削除される。存在しない場合も成功として扱う。
	DeleteByID(ctx context.Context, id string) error

	// UpdateProfile はプロフィールの電話番号・住所・アバターを更新する。
	// OTPフィールドは変更しない。
	UpdateProfile(ctx context.Context, profile *model.Profile) error

	// CountActive は有効化済みアカウント数を返す。
	CountActive(ctx context.Context) (int, error)
}

// AccountTx は登録トランザクション内で使うアカウント操作。
type AccountTx interface {
	// FindByEmailForUpdate はメールアドレスでアカウントを検索し、行ロックを取得する。
	// 見つからない場合はnilを返す。
	FindByEmailForUpdate(ctx context.Context, email string) (*model.Account, error)

	// FindByUsername はユーザー名でアカウントを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Account, error)

	// CreatePending は未確認アカウントと空のプロフィールを作成する。
	// メールアドレスまたはユーザー名が重複した場合はErrEmailTaken/ErrUsernameTakenを返す。
	CreatePending(ctx context.Context, account *model.Account) error

	// UpdatePending は未確認アカウントのユーザー名とパスワードハッシュを上書きする。
	UpdatePending(ctx context.Context, account *model.Account) error

	// SetOTP はOTPコードと発行日時を組で設定する。
	SetOTP(ctx context.Context, accountID, code string, issuedAt time.Time) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// UpdateData はセッションデータを上書きする。
	UpdateData(ctx context.Context, id string, data model.SessionData) error
	// SetAccount はセッションにログイン済みアカウントを設定し、データを上書きする。
	SetAccount(ctx context.Context, id, accountID string, data model.SessionData) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByAccountID は指定アカウントの全セッションを削除する。
	DeleteByAccountID(ctx context.Context, accountID string) error
}

// CategoryRepository はカテゴリの永続化インターフェース。
type CategoryRepository interface {
	// List は全カテゴリを名前順で返す。
	List(ctx context.Context) ([]*model.Category, error)
	// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Category, error)
	// FindBySlug はスラッグでカテゴリを取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Category, error)
	// Create はカテゴリを作成する。スラッグ重複時はErrSlugTakenを返す。
	Create(ctx context.Context, category *model.Category) error
	// Update はカテゴリを更新する。スラッグ重複時はErrSlugTakenを返す。
	Update(ctx context.Context, category *model.Category) error
	// Delete はカテゴリを削除する。所属商品はCASCADE削除される。
	// 削除対象が存在しなかった場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)
	// Count はカテゴリ数を返す。
	Count(ctx context.Context) (int, error)
}

// ProductRepository は商品の永続化インターフェース。
type ProductRepository interface {
	// List は商品一覧を新しい順で返す。categoryIDが空でなければそのカテゴリに絞り込む。
	List(ctx context.Context, categoryID string) ([]*model.ProductWithCategory, error)
	// ListLatest は新しい順に最大limit件の商品を返す。
	ListLatest(ctx context.Context, limit int) ([]*model.ProductWithCategory, error)
	// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ProductWithCategory, error)
	// FindBySlug はスラッグで商品を取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.ProductWithCategory, error)
	// Create は商品を作成する。スラッグ重複時はErrSlugTakenを返す。
	Create(ctx context.Context, product *model.Product) error
	// Update は商品を更新する。スラッグ重複時はErrSlugTakenを返す。
	Update(ctx context.Context, product *model.Product) error
	// Delete は商品を削除する。削除対象が存在しなかった場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)
	// Count は商品数を返す。
	Count(ctx context.Context) (int, error)
}

// CartRepository はカートの永続化インターフェース。
type CartRepository interface {
	// AddItem はアカウントのカートに商品を1つ追加する。
	// カートが無ければ作成し、同じ商品が既にあれば数量を1増やす。
	// 新規明細として作成された場合はtrueを返す。
	AddItem(ctx context.Context, accountID, productID string) (*model.CartItem, bool, error)
	// ListLines はアカウントのカート明細を商品情報付きで追加順に返す。
	ListLines(ctx context.Context, accountID string) ([]model.CartLine, error)
	// RemoveItem はアカウントのカートから明細を削除する。
	// 明細が存在しないか他人のカートのものであればfalseを返す。
	RemoveItem(ctx context.Context, accountID, itemID string) (bool, error)
}

// OrderRepository は注文の永続化インターフェース。
type OrderRepository interface {
	// Checkout はカートの内容から注文を作成し、カートを空にする。
	// 一連の処理は1トランザクションで行われる。カートが空の場合はErrCartEmptyを返す。
	Checkout(ctx context.Context, accountID string, shipping model.ShippingInfo, now time.Time) (*model.OrderWithItems, error)
	// ListByAccount はアカウントの注文を新しい順で返す。
	ListByAccount(ctx context.Context, accountID string) ([]*model.Order, error)
	// ListAll は全注文を新しい順で返す。limitが0以下なら全件。
	ListAll(ctx context.Context, limit int) ([]*model.Order, error)
	// FindWithItems は注文と明細を取得する。見つからない場合はnilを返す。
	FindWithItems(ctx context.Context, id string) (*model.OrderWithItems, error)
	// UpdateStatus は注文ステータスを更新する。対象が存在しなかった場合はfalseを返す。
	UpdateStatus(ctx context.Context, id string, status model.OrderStatus) (bool, error)
	// Totals は注文数と売上合計を返す。
	Totals(ctx context.Context) (int, decimal.Decimal, error)
}
