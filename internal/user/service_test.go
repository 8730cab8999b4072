package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/storefront/internal/model"
)

// --- モック ---

type mockAccountStore struct {
	findByIDFn   func(ctx context.Context, id string) (*model.Account, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockAccountStore) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockAccountStore) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFn(ctx, id)
}

type mockSessionDeleter struct {
	deleteByAccountIDFn func(ctx context.Context, accountID string) error
}

func (m *mockSessionDeleter) DeleteByAccountID(ctx context.Context, accountID string) error {
	return m.deleteByAccountIDFn(ctx, accountID)
}

func activeAccount(ctx context.Context, id string) (*model.Account, error) {
	return &model.Account{ID: id, IsActive: true}, nil
}

// --- テスト ---

func TestWithdraw_DeletesSessionsThenAccount(t *testing.T) {
	var order []string

	accounts := &mockAccountStore{
		findByIDFn: activeAccount,
		deleteByIDFn: func(ctx context.Context, id string) error {
			order = append(order, "account:"+id)
			return nil
		},
	}
	sessions := &mockSessionDeleter{
		deleteByAccountIDFn: func(ctx context.Context, accountID string) error {
			order = append(order, "sessions:"+accountID)
			return nil
		},
	}

	svc := NewService(accounts, sessions)
	if err := svc.Withdraw(context.Background(), "acc-1"); err != nil {
		t.Fatalf("Withdraw がエラーを返した: %v", err)
	}

	want := []string{"sessions:acc-1", "account:acc-1"}
	if len(order) != len(want) {
		t.Fatalf("呼び出し順 = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("呼び出し順[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestWithdraw_AccountNotFound(t *testing.T) {
	tests := []struct {
		name    string
		account *model.Account
	}{
		{"存在しない", nil},
		{"確認待ち", &model.Account{ID: "acc-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &mockAccountStore{
				findByIDFn: func(ctx context.Context, id string) (*model.Account, error) {
					return tt.account, nil
				},
				deleteByIDFn: func(ctx context.Context, id string) error {
					t.Error("DeleteByID が呼ばれた")
					return nil
				},
			}
			sessions := &mockSessionDeleter{
				deleteByAccountIDFn: func(ctx context.Context, accountID string) error {
					t.Error("DeleteByAccountID が呼ばれた")
					return nil
				},
			}

			err := NewService(accounts, sessions).Withdraw(context.Background(), "acc-1")
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAccountNotFound {
				t.Errorf("err = %v, want ACCOUNT_NOT_FOUND", err)
			}
		})
	}
}

func TestWithdraw_SessionDeleteFailureKeepsAccount(t *testing.T) {
	accounts := &mockAccountStore{
		findByIDFn: activeAccount,
		deleteByIDFn: func(ctx context.Context, id string) error {
			t.Error("セッション削除に失敗したのにアカウントが削除された")
			return nil
		},
	}
	sessions := &mockSessionDeleter{
		deleteByAccountIDFn: func(ctx context.Context, accountID string) error {
			return errors.New("db error")
		},
	}

	if err := NewService(accounts, sessions).Withdraw(context.Background(), "acc-1"); err == nil {
		t.Fatal("エラーが返されなかった")
	}
}

func TestWithdraw_FindError(t *testing.T) {
	accounts := &mockAccountStore{
		findByIDFn: func(ctx context.Context, id string) (*model.Account, error) {
			return nil, errors.New("connection refused")
		},
	}
	if err := NewService(accounts, &mockSessionDeleter{}).Withdraw(context.Background(), "acc-1"); err == nil {
		t.Fatal("エラーが返されなかった")
	}
}
