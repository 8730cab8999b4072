// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/registration"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
// 訪問者セッションはIDで渡し、セッションへの紐付けはサービス側で行う。
type AuthServiceInterface interface {
	Register(ctx context.Context, sessionID string, in registration.RegisterInput) (*registration.IssueResult, error)
	Verify(ctx context.Context, sessionID, code string) (registration.VerifyResult, error)
	Login(ctx context.Context, sessionID, username, password string) (*model.Account, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, accountID string) (*model.Account, error)
}

// AuthHandler は登録・メール確認・ログインのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	cookie  middleware.SessionConfig
	present presenter
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookie middleware.SessionConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookie:  cookie,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	Account accountResponse `json:"account"`
	Emailed bool            `json:"emailed"`
}

// Register は未確認アカウントを作成（または再利用）し、確認コードをメールで送る。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := currentSessionID(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Register(r.Context(), sessionID, registration.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		// 送信失敗時もアカウントは確認待ちのままセッションに紐付いている
		var deliveryErr *registration.EmailDeliveryError
		if errors.As(err, &deliveryErr) {
			slog.Warn("registration email not delivered",
				slog.String("error", deliveryErr.Err.Error()),
			)
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		Account: h.present.account(result.Account),
		Emailed: result.Emailed,
	})
}

type verifyRequest struct {
	Code string `json:"code"`
}

type verifyResponse struct {
	Result string `json:"result"`
}

// Verify はセッションに紐付いた確認待ちアカウントの確認コードを照合する。
// 成功するとアカウントが有効化され、セッションはログイン済みになる。
// POST /auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := currentSessionID(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Verify(r.Context(), sessionID, req.Code)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if err := result.Err(); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{Result: result.String()})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login はユーザー名とパスワードでログインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := currentSessionID(w, r)
	if !ok {
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.service.Login(r.Context(), sessionID, req.Username, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.account(account))
}

// Logout はセッションを破棄し、セッションCookieを削除する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID, err := middleware.SessionIDFromContext(r.Context()); err == nil {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	middleware.ClearSessionCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetCurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.account(account))
}
