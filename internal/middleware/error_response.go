package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hitoshi/storefront/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// errRateLimited はレート制限超過時のエラー本文。
var errRateLimited = &model.APIError{
	Code:     "rate_limit_exceeded",
	Message:  "リクエストが多すぎます。",
	Category: "system",
	Action:   "しばらく待ってから再度お試しください。",
}

// errInternal は内部エラー時のエラー本文。詳細はログにのみ残す。
var errInternal = &model.APIError{
	Code:     "INTERNAL_ERROR",
	Message:  "内部エラーが発生しました。",
	Category: "system",
	Action:   "しばらく待ってから再度お試しください。",
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// エラー応答はキャッシュさせない。apiErrがnilの場合は内部エラーとして扱う。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr == nil {
		statusCode, apiErr = http.StatusInternalServerError, errInternal
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, errInternal)
}

// WriteTooManyRequests は429レスポンスをRetry-After（秒）付きで書き込む。
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSec int) {
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, errRateLimited)
}
