// Package user はアカウントの退会処理を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/storefront/internal/model"
)

// AccountStore は退会処理で使うアカウント操作。
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
	DeleteByID(ctx context.Context, id string) error
}

// SessionDeleter はアカウントのセッション一括削除インターフェース。
type SessionDeleter interface {
	DeleteByAccountID(ctx context.Context, accountID string) error
}

// Service はアカウント管理のサービス層。
type Service struct {
	accounts AccountStore
	sessions SessionDeleter
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(accounts AccountStore, sessions SessionDeleter) *Service {
	return &Service{
		accounts: accounts,
		sessions: sessions,
	}
}

// Withdraw はアカウントの退会処理を実行する。
// 削除順序: sessions → account（+ CASCADE: profile, cart, cart_items, orders, order_items）
// 商品・カテゴリは共有データとして残す。
func (s *Service) Withdraw(ctx context.Context, accountID string) error {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil || !account.IsActive {
		return model.NewAccountNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", accountID),
	)

	// 1. 他の端末を含む全セッションを削除
	if err := s.sessions.DeleteByAccountID(ctx, accountID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	// 2. アカウントを削除
	if err := s.accounts.DeleteByID(ctx, accountID); err != nil {
		return fmt.Errorf("アカウントの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", accountID),
	)
	return nil
}
