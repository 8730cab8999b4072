package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/storefront/internal/database"
	"github.com/hitoshi/storefront/internal/model"
)

const accountColumns = `id, username, email, password_hash, is_active, is_staff, is_superuser, created_at, updated_at`

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

func scanAccount(row interface{ Scan(...any) error }) (*model.Account, error) {
	a := &model.Account{}
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash,
		&a.IsActive, &a.IsStaff, &a.IsSuperuser, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func findAccount(ctx context.Context, q database.DBTX, where string, arg any) (*model.Account, error) {
	a, err := scanAccount(q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	a, err := findAccount(ctx, r.db, `id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return a, nil
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	a, err := findAccount(ctx, r.db, `email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return a, nil
}

// FindByUsername はユーザー名でアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	a, err := findAccount(ctx, r.db, `username = $1`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by username: %w", err)
	}
	return a, nil
}

// FindWithProfile はアカウントとプロフィールを結合して取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindWithProfile(ctx context.Context, id string) (*model.AccountWithProfile, error) {
	awp := &model.AccountWithProfile{}
	a := &awp.Account
	p := &awp.Profile
	var otpCode sql.NullString
	var otpIssuedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT a.id, a.username, a.email, a.password_hash, a.is_active, a.is_staff, a.is_superuser,
		        a.created_at, a.updated_at,
		        p.phone, p.address, p.avatar, p.otp_code, p.otp_issued_at
		 FROM accounts a
		 JOIN profiles p ON p.account_id = a.id
		 WHERE a.id = $1`,
		id,
	).Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.IsActive, &a.IsStaff, &a.IsSuperuser,
		&a.CreatedAt, &a.UpdatedAt,
		&p.Phone, &p.Address, &p.Avatar, &otpCode, &otpIssuedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account with profile: %w", err)
	}

	p.AccountID = a.ID
	if otpCode.Valid && otpIssuedAt.Valid {
		code := otpCode.String
		issued := otpIssuedAt.Time
		p.OTPCode = &code
		p.OTPIssuedAt = &issued
	}
	return awp, nil
}

// RunInTx はfnを1つのトランザクション内で実行する。
func (r *PostgresAccountRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx AccountTx) error) error {
	return database.WithTx(ctx, r.db, func(ctx context.Context, q database.DBTX) error {
		return fn(ctx, &postgresAccountTx{q: q})
	})
}

// Activate はcodeが現在の確認コードと一致する確認待ちアカウントのみを有効化し、OTPを消去する。
// アカウントが存在しない、有効化済み、またはコードが再発行されていた場合はfalseを返す。
func (r *PostgresAccountRepo) Activate(ctx context.Context, id, code string, now time.Time) (bool, error) {
	var activated bool
	err := database.WithTx(ctx, r.db, func(ctx context.Context, q database.DBTX) error {
		// 登録時と同じくaccounts行を先にロックし、再登録や削除と直列化する
		var active bool
		err := q.QueryRowContext(ctx,
			`SELECT is_active FROM accounts WHERE id = $1 FOR UPDATE`,
			id,
		).Scan(&active)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if active {
			return nil
		}

		res, err := q.ExecContext(ctx,
			`UPDATE profiles SET otp_code = NULL, otp_issued_at = NULL
			 WHERE account_id = $1 AND otp_code = $2`,
			id, code,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		if _, err := q.ExecContext(ctx,
			`UPDATE accounts SET is_active = TRUE, updated_at = $2 WHERE id = $1`,
			id, now,
		); err != nil {
			return err
		}
		activated = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to activate account: %w", err)
	}
	return activated, nil
}

// DeleteByID は指定IDのアカウントを削除する。
// プロフィールはCASCADE削除される。存在しない場合も成功として扱う。
func (r *PostgresAccountRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// UpdateProfile はプロフィールの電話番号・住所・アバターを更新する。
func (r *PostgresAccountRepo) UpdateProfile(ctx context.Context, profile *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET phone = $2, address = $3, avatar = $4 WHERE account_id = $1`,
		profile.AccountID, profile.Phone, profile.Address, profile.Avatar,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// CountActive は有効化済みアカウント数を返す。
func (r *PostgresAccountRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE is_active = TRUE`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active accounts: %w", err)
	}
	return count, nil
}

// postgresAccountTx は登録トランザクション内のアカウント操作。
type postgresAccountTx struct {
	q database.DBTX
}

func (t *postgresAccountTx) FindByEmailForUpdate(ctx context.Context, email string) (*model.Account, error) {
	a, err := findAccount(ctx, t.q, `email = $1 FOR UPDATE`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account by email: %w", err)
	}
	return a, nil
}

func (t *postgresAccountTx) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	a, err := findAccount(ctx, t.q, `username = $1`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by username: %w", err)
	}
	return a, nil
}

func (t *postgresAccountTx) CreatePending(ctx context.Context, account *model.Account) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO accounts (id, username, email, password_hash, is_active, is_staff, is_superuser, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, FALSE, FALSE, FALSE, $5, $6)`,
		account.ID, account.Username, account.Email, account.PasswordHash, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", translateAccountConflict(err))
	}

	_, err = t.q.ExecContext(ctx,
		`INSERT INTO profiles (account_id) VALUES ($1)`,
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

func (t *postgresAccountTx) UpdatePending(ctx context.Context, account *model.Account) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE accounts SET username = $2, password_hash = $3, updated_at = $4
		 WHERE id = $1 AND is_active = FALSE`,
		account.ID, account.Username, account.PasswordHash, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update pending account: %w", translateAccountConflict(err))
	}
	return nil
}

func (t *postgresAccountTx) SetOTP(ctx context.Context, accountID, code string, issuedAt time.Time) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE profiles SET otp_code = $2, otp_issued_at = $3 WHERE account_id = $1`,
		accountID, code, issuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set otp: %w", err)
	}
	return nil
}

// translateAccountConflict は一意制約違反を対応するエラーに変換する。
func translateAccountConflict(err error) error {
	switch constraint, _ := database.UniqueViolation(err); constraint {
	case "accounts_email_key":
		return ErrEmailTaken
	case "accounts_username_key":
		return ErrUsernameTaken
	}
	return err
}

// compile-time interface check
var (
	_ AccountRepository = (*PostgresAccountRepo)(nil)
	_ AccountTx         = (*postgresAccountTx)(nil)
)
