package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/storefront/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session.Data)
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, account_id, data, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, nullString(session.AccountID), string(data), session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var accountID sql.NullString
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, data, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &accountID, &data, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	session.AccountID = accountID.String
	if err := json.Unmarshal(data, &session.Data); err != nil {
		return nil, fmt.Errorf("failed to decode session data: %w", err)
	}
	return session, nil
}

// UpdateData はセッションデータを上書きする。
func (r *PostgresSessionRepo) UpdateData(ctx context.Context, id string, data model.SessionData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE sessions SET data = $2 WHERE id = $1`,
		id, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to update session data: %w", err)
	}
	return nil
}

// SetAccount はセッションにログイン済みアカウントを設定し、データを上書きする。
func (r *PostgresSessionRepo) SetAccount(ctx context.Context, id, accountID string, data model.SessionData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE sessions SET account_id = $2, data = $3 WHERE id = $1`,
		id, nullString(accountID), string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to set session account: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByAccountID は指定アカウントの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByAccountID(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete account sessions: %w", err)
	}
	return nil
}

// nullString は空文字をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
