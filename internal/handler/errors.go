package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

// maxJSONBodySize はJSONリクエストボディの上限。
const maxJSONBodySize = 1 << 20

// writeJSON はvをJSONで書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをvにデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	return true
}

// currentUserID はログイン済みユーザーIDを返す。未ログインなら401を書き込みfalseを返す。
func currentUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// currentSessionID はセッションIDを返す。セッションミドルウェアを通っていなければ500を書き込む。
func currentSessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		slog.Error("session middleware not applied", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return "", false
	}
	return sessionID, true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidRequest, model.ErrCodeOTPMismatch,
		model.ErrCodeInvalidOrderStatus:
		return http.StatusBadRequest
	case model.ErrCodeEmailDelivery:
		return http.StatusServiceUnavailable
	case model.ErrCodeSessionExpired, model.ErrCodeAccountMissing, model.ErrCodeOTPExpired:
		return http.StatusGone
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeCSRFTokenInvalid:
		return http.StatusForbidden
	case model.ErrCodeAccountNotFound, model.ErrCodeCategoryNotFound, model.ErrCodeProductNotFound,
		model.ErrCodeCartItemNotFound, model.ErrCodeOrderNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateSlug:
		return http.StatusConflict
	case model.ErrCodeImageImportFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
