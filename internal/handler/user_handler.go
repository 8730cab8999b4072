package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/storefront/internal/auth"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, accountID string) (*model.AccountWithProfile, error)
	UpdateProfile(ctx context.Context, accountID string, in auth.ProfileInput) (*model.AccountWithProfile, error)
	// Withdraw はアカウントを削除する。プロフィール・カート・注文はCASCADEで、
	// セッションはサービス側で削除される。
	Withdraw(ctx context.Context, accountID string) error
}

// UserHandler はプロフィールと退会のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookie  middleware.SessionConfig
	present presenter
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, media MediaURLResolver, cookie middleware.SessionConfig) *UserHandler {
	return &UserHandler{
		service: service,
		cookie:  cookie,
		present: presenter{media: media},
	}
}

// GetProfile はログイン中のアカウントのプロフィールを返す。
// GET /api/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.profile(account))
}

// UpdateProfile は電話番号・住所・アバターを更新する。
// アバターを送る場合はmultipart/form-dataのavatarフィールドを使う。
// PUT /api/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	fields, err := readFormFields(w, r, "avatar")
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer fields.close()

	account, err := h.service.UpdateProfile(r.Context(), userID, auth.ProfileInput{
		Phone:   fields.get("phone"),
		Address: fields.get("address"),
		Avatar:  fields.image(),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.profile(account))
}

// Withdraw はアカウントを削除し、セッションCookieを削除する。
// DELETE /api/account
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.ClearSessionCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}
