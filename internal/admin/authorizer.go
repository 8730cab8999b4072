// Package admin はスタッフ向けの管理操作を提供する。
//
// すべての操作は第1引数にStaffを取る。StaffはAuthorizerだけが発行でき、
// ゼロ値のStaffを渡された操作はFORBIDDENを返す。
package admin

import (
	"context"
	"fmt"

	"github.com/hitoshi/storefront/internal/model"
)

// Staff は管理操作を許可されたアカウントを表すケイパビリティ。
type Staff struct {
	accountID string
}

// AccountID はスタッフのアカウントIDを返す。
func (s Staff) AccountID() string {
	return s.accountID
}

func (s Staff) check() error {
	if s.accountID == "" {
		return model.NewForbiddenError()
	}
	return nil
}

// AccountFinder はスタッフ判定に使うアカウント取得インターフェース。
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
}

// Authorizer はアカウントを検査してStaffを発行する。
type Authorizer struct {
	accounts AccountFinder
}

// NewAuthorizer はAuthorizerを生成する。
func NewAuthorizer(accounts AccountFinder) *Authorizer {
	return &Authorizer{accounts: accounts}
}

// Staff はaccountIDが有効なスタッフまたはスーパーユーザーであればStaffを返す。
// それ以外はFORBIDDENを返す。
func (a *Authorizer) Staff(ctx context.Context, accountID string) (Staff, error) {
	if accountID == "" {
		return Staff{}, model.NewForbiddenError()
	}
	account, err := a.accounts.FindByID(ctx, accountID)
	if err != nil {
		return Staff{}, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil || !account.CanAdminister() {
		return Staff{}, model.NewForbiddenError()
	}
	return Staff{accountID: account.ID}, nil
}
