// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// SessionCookieName は訪問者セッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// sessionIDContextKey はリクエストコンテキストにセッションIDを格納するためのキー。
	sessionIDContextKey = contextKey("session_id")
)

// SessionLoader は訪問者セッションの取得・発行に必要なインターフェース。
type SessionLoader interface {
	LoadOrCreate(ctx context.Context, id string) (*model.Session, bool, error)
	MaxAge() time.Duration
}

// SessionConfig はセッションCookieの設定。
type SessionConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewSessionMiddleware はHTTP Only Cookieから訪問者セッションを読み込み、
// 無効であれば新しい匿名セッションを発行するミドルウェアを返す。
// セッションIDと、ログイン済みであればユーザーIDをリクエストコンテキストに注入する。
// 未ログインでもリクエストは拒否しない。認証が必要なルートにはNewRequireAuthを併用する。
func NewSessionMiddleware(loader SessionLoader, config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var current string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				current = cookie.Value
			}

			session, created, err := loader.LoadOrCreate(r.Context(), current)
			if err != nil {
				slog.Error("failed to load session",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			if created {
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    session.ID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   int(loader.MaxAge().Seconds()),
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := ContextWithSessionID(r.Context(), session.ID)
			if session.IsAuthenticated() {
				ctx = ContextWithUserID(ctx, session.AccountID)
				setLoggedUser(ctx, session.AccountID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClearSessionCookie はセッションCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, config SessionConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// NewRequireAuth はログイン済みでないリクエストに401を返すミドルウェアを返す。
// NewSessionMiddlewareの後に配置する。
func NewRequireAuth() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := UserIDFromContext(r.Context()); err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ログイン済みセッションのリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// SessionIDFromContext はリクエストコンテキストからセッションIDを取得する。
func SessionIDFromContext(ctx context.Context) (string, error) {
	sessionID, ok := ctx.Value(sessionIDContextKey).(string)
	if !ok || sessionID == "" {
		return "", fmt.Errorf("session ID not found in context")
	}
	return sessionID, nil
}

// ContextWithSessionID はコンテキストにセッションIDを注入する。
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}
