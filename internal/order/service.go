// Package order は購入者向けの注文履歴を提供する。
package order

import (
	"context"
	"fmt"

	"github.com/hitoshi/storefront/internal/model"
)

// HistoryStore は注文履歴の取得に必要なリポジトリ操作。
type HistoryStore interface {
	ListByAccount(ctx context.Context, accountID string) ([]*model.Order, error)
	FindWithItems(ctx context.Context, id string) (*model.OrderWithItems, error)
}

// Service は注文履歴のサービス層。
type Service struct {
	orders HistoryStore
}

// NewService はServiceを生成する。
func NewService(orders HistoryStore) *Service {
	return &Service{orders: orders}
}

// History はアカウントの注文を新しい順で返す。
func (s *Service) History(ctx context.Context, accountID string) ([]*model.Order, error) {
	orders, err := s.orders.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []*model.Order{}
	}
	return orders, nil
}

// Get はアカウント自身の注文を明細付きで返す。
// 他人の注文は存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, accountID, orderID string) (*model.OrderWithItems, error) {
	o, err := s.orders.FindWithItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	if o == nil || o.AccountID != accountID {
		return nil, model.NewOrderNotFoundError(orderID)
	}
	return o, nil
}
