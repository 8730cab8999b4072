package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// DBTX は*sql.DBと*sql.Txの共通部分。
// リポジトリはこのインターフェース越しにクエリを発行するため、
// 同じ実装をトランザクション内外の両方で使える。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx はトランザクションを開始してfnを実行する。
// fnがエラーを返すかpanicした場合はロールバックし、それ以外はコミットする。
// panicはロールバック後に再送出される。
func WithTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// uniqueViolation はPostgreSQLのunique_violationのSQLSTATE。
const uniqueViolation = "23505"

// UniqueViolation はerrが一意制約違反であれば違反した制約名とtrueを返す。
func UniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}
