package handler

import (
	"context"

	"github.com/hitoshi/storefront/internal/admin"
	"github.com/hitoshi/storefront/internal/auth"
	"github.com/hitoshi/storefront/internal/cart"
	"github.com/hitoshi/storefront/internal/catalog"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/order"
	"github.com/hitoshi/storefront/internal/registration"
	"github.com/hitoshi/storefront/internal/session"
	"github.com/hitoshi/storefront/internal/user"
)

// SessionBinder は訪問者セッションIDからBinderを得るインターフェース。session.Storeが満たす。
type SessionBinder interface {
	Bind(sessionID string) session.Binder
}

// AuthServiceAdapter は registration.Service と auth.Service を AuthServiceInterface に適合させるアダプタ。
// ハンドラーから受け取ったセッションIDをBinderに変換して各サービスに渡す。
type AuthServiceAdapter struct {
	sessions     SessionBinder
	registration *registration.Service
	auth         *auth.Service
}

// NewAuthServiceAdapter はAuthServiceAdapterを生成する。
func NewAuthServiceAdapter(sessions SessionBinder, reg *registration.Service, authSvc *auth.Service) *AuthServiceAdapter {
	return &AuthServiceAdapter{
		sessions:     sessions,
		registration: reg,
		auth:         authSvc,
	}
}

// Register は確認コードを発行し、セッションに確認待ちアカウントを紐付ける。
func (a *AuthServiceAdapter) Register(ctx context.Context, sessionID string, in registration.RegisterInput) (*registration.IssueResult, error) {
	return a.registration.Issue(ctx, a.sessions.Bind(sessionID), in)
}

// Verify はセッションに紐付いた確認待ちアカウントの確認コードを照合する。
func (a *AuthServiceAdapter) Verify(ctx context.Context, sessionID, code string) (registration.VerifyResult, error) {
	return a.registration.Verify(ctx, a.sessions.Bind(sessionID), code)
}

// Login はセッションをログイン済みにする。
func (a *AuthServiceAdapter) Login(ctx context.Context, sessionID, username, password string) (*model.Account, error) {
	return a.auth.Login(ctx, a.sessions.Bind(sessionID), username, password)
}

// Logout はセッションを破棄する。
func (a *AuthServiceAdapter) Logout(ctx context.Context, sessionID string) error {
	return a.auth.Logout(ctx, sessionID)
}

// GetCurrentUser はログイン中のアカウントを返す。
func (a *AuthServiceAdapter) GetCurrentUser(ctx context.Context, accountID string) (*model.Account, error) {
	return a.auth.GetCurrentUser(ctx, accountID)
}

// UserServiceAdapter はプロフィール（auth.Service）と退会（user.Service）を UserServiceInterface にまとめるアダプタ。
type UserServiceAdapter struct {
	auth *auth.Service
	user *user.Service
}

// NewUserServiceAdapter はUserServiceAdapterを生成する。
func NewUserServiceAdapter(authSvc *auth.Service, userSvc *user.Service) *UserServiceAdapter {
	return &UserServiceAdapter{auth: authSvc, user: userSvc}
}

// GetProfile はアカウントとプロフィールを返す。
func (a *UserServiceAdapter) GetProfile(ctx context.Context, accountID string) (*model.AccountWithProfile, error) {
	return a.auth.GetProfile(ctx, accountID)
}

// UpdateProfile はプロフィールを更新する。
func (a *UserServiceAdapter) UpdateProfile(ctx context.Context, accountID string, in auth.ProfileInput) (*model.AccountWithProfile, error) {
	return a.auth.UpdateProfile(ctx, accountID, in)
}

// Withdraw はアカウントの退会処理を実行する。
func (a *UserServiceAdapter) Withdraw(ctx context.Context, accountID string) error {
	return a.user.Withdraw(ctx, accountID)
}

// --- compile-time interface checks ---

var _ AuthServiceInterface = (*AuthServiceAdapter)(nil)
var _ UserServiceInterface = (*UserServiceAdapter)(nil)
var _ SessionBinder = (*session.Store)(nil)
var _ CatalogServiceInterface = (*catalog.Service)(nil)
var _ CartServiceInterface = (*cart.Service)(nil)
var _ OrderServiceInterface = (*order.Service)(nil)
var _ StaffAuthorizer = (*admin.Authorizer)(nil)
var _ AdminServiceInterface = (*admin.Service)(nil)
