// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, registration, email, catalog, cart, order, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeEmailDelivery      = "EMAIL_DELIVERY_FAILED"
	ErrCodeSessionExpired     = "SESSION_EXPIRED"
	ErrCodeAccountMissing     = "ACCOUNT_MISSING"
	ErrCodeOTPExpired         = "OTP_EXPIRED"
	ErrCodeOTPMismatch        = "OTP_MISMATCH"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	ErrCodeCategoryNotFound   = "CATEGORY_NOT_FOUND"
	ErrCodeProductNotFound    = "PRODUCT_NOT_FOUND"
	ErrCodeCartItemNotFound   = "CART_ITEM_NOT_FOUND"
	ErrCodeOrderNotFound      = "ORDER_NOT_FOUND"
	ErrCodeDuplicateSlug      = "DUPLICATE_SLUG"
	ErrCodeImageImportFailed  = "IMAGE_IMPORT_FAILED"
	ErrCodeInvalidOrderStatus = "INVALID_ORDER_STATUS"
	ErrCodeCSRFTokenInvalid   = "CSRF_TOKEN_INVALID"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
)

// NewValidationError は入力検証エラーを生成する。
// fieldには問題のある入力項目名を指定する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("%s: %s", field, reason),
		Category: "validation",
		Action:   "入力内容を確認して再度送信してください。",
	}
}

// IsValidationError はerrが入力検証エラーかどうかを返す。
func IsValidationError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeValidation
}

// NewEmailDeliveryError は確認メール送信失敗エラーを生成する。
// アカウントは確認待ちのまま保持される。
func NewEmailDeliveryError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailDelivery,
		Message:  "確認コードのメール送信に失敗しました。",
		Category: "email",
		Action:   "しばらく待ってから再度登録するか、届いたコードで確認を続けてください。",
	}
}

// NewSessionExpiredError は確認待ちの登録がセッションに存在しない場合のエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "確認待ちの登録が見つかりません。セッションの有効期限が切れた可能性があります。",
		Category: "registration",
		Action:   "もう一度登録からやり直してください。",
	}
}

// NewAccountMissingError は確認対象のアカウントが存在しない場合のエラーを生成する。
func NewAccountMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountMissing,
		Message:  "確認対象のアカウントが見つかりません。",
		Category: "registration",
		Action:   "もう一度登録からやり直してください。",
	}
}

// NewOTPExpiredError は確認コードの有効期限切れエラーを生成する。
func NewOTPExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeOTPExpired,
		Message:  "確認コードの有効期限が切れたため、登録は取り消されました。",
		Category: "registration",
		Action:   "もう一度登録してください。",
	}
}

// NewOTPMismatchError は確認コード不一致エラーを生成する。
func NewOTPMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeOTPMismatch,
		Message:  "確認コードが正しくありません。",
		Category: "registration",
		Action:   "メールに記載された6桁のコードを入力してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認してください。メール確認が完了していない場合はログインできません。",
	}
}

// NewCSRFTokenInvalidError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "GET /api/csrf-token でトークンを取得し、X-CSRF-Tokenヘッダーに設定してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストの解析に失敗しました。",
		Category: "validation",
		Action:   "正しい形式でリクエストしてください。",
	}
}

// NewUnauthorizedError は未ログインエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は管理権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作にはスタッフ権限が必要です。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewAccountNotFoundError はアカウントが見つからない場合のエラーを生成する。
func NewAccountNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  "アカウントが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewCategoryNotFoundError はカテゴリ未検出エラーを生成する。
func NewCategoryNotFoundError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeCategoryNotFound,
		Message:  fmt.Sprintf("指定されたカテゴリが見つかりません: %s", key),
		Category: "catalog",
		Action:   "カテゴリを確認してください。",
	}
}

// NewProductNotFoundError は商品未検出エラーを生成する。
func NewProductNotFoundError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  fmt.Sprintf("指定された商品が見つかりません: %s", key),
		Category: "catalog",
		Action:   "商品を確認してください。",
	}
}

// NewCartItemNotFoundError はカート明細未検出エラーを生成する。
func NewCartItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeCartItemNotFound,
		Message:  fmt.Sprintf("カートに指定された商品がありません: %s", itemID),
		Category: "cart",
		Action:   "カートの内容を再読み込みしてください。",
	}
}

// NewOrderNotFoundError は注文未検出エラーを生成する。
func NewOrderNotFoundError(orderID string) *APIError {
	return &APIError{
		Code:     ErrCodeOrderNotFound,
		Message:  fmt.Sprintf("指定された注文が見つかりません: %s", orderID),
		Category: "order",
		Action:   "注文IDを確認してください。",
	}
}

// NewDuplicateSlugError はスラッグ重複エラーを生成する。
func NewDuplicateSlugError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateSlug,
		Message:  fmt.Sprintf("スラッグは既に使用されています: %s", slug),
		Category: "catalog",
		Action:   "別のスラッグを指定してください。",
	}
}

// NewImageImportFailedError は画像URLからの取り込み失敗エラーを生成する。
func NewImageImportFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeImageImportFailed,
		Message:  fmt.Sprintf("画像の取り込みに失敗しました: %s", reason),
		Category: "catalog",
		Action:   "公開されているhttps/httpの画像URLを指定するか、画像ファイルを直接アップロードしてください。",
	}
}

// NewInvalidOrderStatusError は無効な注文ステータスエラーを生成する。
func NewInvalidOrderStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOrderStatus,
		Message:  fmt.Sprintf("無効な注文ステータスです: %s", status),
		Category: "validation",
		Action:   "pending、processing、shipped、delivered、cancelled のいずれかを指定してください。",
	}
}
