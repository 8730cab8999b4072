// Package session は訪問者セッションのライフサイクルと、
// 登録確認フローがセッションに保持する値へのアクセスを提供する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hitoshi/storefront/internal/clock"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// Binder は1つの訪問者セッションに対する操作。
// 発行・確認処理はグローバルなセッション辞書ではなく、このインターフェースを受け取って動作する。
type Binder interface {
	// PendingAccountID は確認待ちのアカウントIDを返す。未設定ならfalse。
	PendingAccountID(ctx context.Context) (string, bool, error)
	// BindPending は確認待ちのアカウントIDをセッションに保存する。
	BindPending(ctx context.Context, accountID string) error
	// ClearPending は確認待ちのアカウントIDを消去する。
	ClearPending(ctx context.Context) error
	// Login はセッションを指定アカウントでログイン済みにする。
	Login(ctx context.Context, accountID string) error
}

// Store はセッションの発行・取得・破棄を行う。
type Store struct {
	repo   repository.SessionRepository
	clock  clock.Clock
	maxAge time.Duration
}

// NewStore はStoreを生成する。maxAgeはセッションの有効期間。
func NewStore(repo repository.SessionRepository, clk clock.Clock, maxAge time.Duration) *Store {
	return &Store{repo: repo, clock: clk, maxAge: maxAge}
}

// MaxAge はセッションの有効期間を返す。
func (s *Store) MaxAge() time.Duration {
	return s.maxAge
}

// Create は匿名セッションを発行する。
func (s *Store) Create(ctx context.Context) (*model.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.clock.Now()
	session := &model.Session{
		ID:        id,
		ExpiresAt: now.Add(s.maxAge),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// Find は有効なセッションを返す。見つからないか期限切れの場合はnilを返す。
func (s *Store) Find(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, nil
	}
	return s.repo.FindByID(ctx, id)
}

// LoadOrCreate はidのセッションを返し、無効であれば新しい匿名セッションを発行する。
// 2番目の戻り値は新規発行したかどうか。
func (s *Store) LoadOrCreate(ctx context.Context, id string) (*model.Session, bool, error) {
	session, err := s.Find(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if session != nil {
		return session, false, nil
	}
	session, err = s.Create(ctx)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// Destroy はセッションを破棄する。
func (s *Store) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("session ID is required")
	}
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Bind はsessionIDのセッションに対するBinderを返す。
func (s *Store) Bind(sessionID string) Binder {
	return &boundSession{repo: s.repo, id: sessionID}
}

// boundSession はStore.Bindが返すBinder実装。
// セッションの値は呼び出しのたびに読み直す。
type boundSession struct {
	repo repository.SessionRepository
	id   string
}

func (b *boundSession) load(ctx context.Context) (*model.Session, error) {
	session, err := b.repo.FindByID(ctx, b.id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

func (b *boundSession) PendingAccountID(ctx context.Context) (string, bool, error) {
	session, err := b.load(ctx)
	if err != nil {
		return "", false, err
	}
	if session == nil || session.Data.PendingAccountID == "" {
		return "", false, nil
	}
	return session.Data.PendingAccountID, true, nil
}

func (b *boundSession) BindPending(ctx context.Context, accountID string) error {
	session, err := b.load(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return model.NewSessionExpiredError()
	}
	data := session.Data
	data.PendingAccountID = accountID
	if err := b.repo.UpdateData(ctx, b.id, data); err != nil {
		return fmt.Errorf("failed to bind pending account: %w", err)
	}
	return nil
}

func (b *boundSession) ClearPending(ctx context.Context) error {
	session, err := b.load(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	data := session.Data
	data.PendingAccountID = ""
	if err := b.repo.UpdateData(ctx, b.id, data); err != nil {
		return fmt.Errorf("failed to clear pending account: %w", err)
	}
	return nil
}

func (b *boundSession) Login(ctx context.Context, accountID string) error {
	session, err := b.load(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return model.NewSessionExpiredError()
	}
	if err := b.repo.SetAccount(ctx, b.id, accountID, session.Data); err != nil {
		return fmt.Errorf("failed to login session: %w", err)
	}
	return nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
