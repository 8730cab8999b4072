// Package model はドメインモデルを定義する。
package model

import "time"

// Account はストアの利用アカウントを表す。
// IsActiveがfalseのアカウントはメール確認待ち（pending）であり、ログインには使用できない。
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanAdminister はアカウントが管理パネルを操作できるかを返す。
func (a *Account) CanAdminister() bool {
	return a.IsActive && (a.IsStaff || a.IsSuperuser)
}

// Profile はAccountと1対1で紐づくプロフィール情報を表す。
// OTPCodeとOTPIssuedAtは常に両方設定されているか、両方nilのどちらかである。
type Profile struct {
	AccountID   string
	Phone       string
	Address     string
	Avatar      string // メディアストレージ上のオブジェクトキー
	OTPCode     *string
	OTPIssuedAt *time.Time
}

// HasOTP はOTPが発行済みかどうかを返す。
func (p *Profile) HasOTP() bool {
	return p.OTPCode != nil && p.OTPIssuedAt != nil
}

// AccountWithProfile はアカウントとプロフィールを結合した構造体。
type AccountWithProfile struct {
	Account
	Profile Profile
}

// Session は訪問者ごとのサーバー側セッションを表す。
// 未ログインの訪問者にも発行され、AccountIDが空の場合は匿名セッションとなる。
type Session struct {
	ID        string
	AccountID string // 認証済みアカウントID。空文字は未ログイン
	Data      SessionData
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsAuthenticated はセッションがログイン済みかどうかを返す。
func (s *Session) IsAuthenticated() bool {
	return s.AccountID != ""
}

// SessionData はsessions.dataカラムにJSONで保存されるセッションスコープの値。
type SessionData struct {
	// PendingAccountID はOTP確認待ちのアカウントID。
	// アカウントの生存を保証しない弱参照であり、確認時に必ず再解決する。
	PendingAccountID string `json:"pending_account_id,omitempty"`
}
