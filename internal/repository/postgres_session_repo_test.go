package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

func TestPostgresSessionRepo_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresSessionRepo(db)
	accounts := NewPostgresAccountRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	a := newPendingAccount("gina", "gina@example.com", now)
	createPending(t, accounts, a, "666666", now)

	s := &model.Session{
		ID:        "anon-session",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create に失敗: %v", err)
	}

	got, err := repo.FindByID(ctx, s.ID)
	if err != nil || got == nil {
		t.Fatalf("FindByID = %+v, %v", got, err)
	}
	if got.IsAuthenticated() {
		t.Error("匿名セッションが認証済みになっている")
	}

	if err := repo.UpdateData(ctx, s.ID, model.SessionData{PendingAccountID: a.ID}); err != nil {
		t.Fatalf("UpdateData に失敗: %v", err)
	}
	got, _ = repo.FindByID(ctx, s.ID)
	if got.Data.PendingAccountID != a.ID {
		t.Errorf("PendingAccountID = %q, want %q", got.Data.PendingAccountID, a.ID)
	}

	if err := repo.SetAccount(ctx, s.ID, a.ID, model.SessionData{}); err != nil {
		t.Fatalf("SetAccount に失敗: %v", err)
	}
	got, _ = repo.FindByID(ctx, s.ID)
	if got.AccountID != a.ID || got.Data.PendingAccountID != "" {
		t.Errorf("ログイン後のセッションが不正: %+v", got)
	}

	if err := repo.DeleteByAccountID(ctx, a.ID); err != nil {
		t.Fatalf("DeleteByAccountID に失敗: %v", err)
	}
	got, _ = repo.FindByID(ctx, s.ID)
	if got != nil {
		t.Errorf("削除したセッションが返された: %+v", got)
	}
}

func TestPostgresSessionRepo_FindByID_ExpiredSession(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresSessionRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	s := &model.Session{
		ID:        "expired-session",
		ExpiresAt: now.Add(-time.Minute),
		CreatedAt: now.Add(-time.Hour),
	}
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create に失敗: %v", err)
	}

	got, err := repo.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("FindByID がエラーを返した: %v", err)
	}
	if got != nil {
		t.Errorf("期限切れセッションが返された: %+v", got)
	}
}
