// Package auth はパスワードによるログイン・ログアウトとプロフィール管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/storefront/internal/media"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/session"
)

// プロフィール項目の最大長
const (
	maxPhoneLength   = 32
	maxAddressLength = 500
)

// dummyHash は存在しないユーザーでもbcrypt比較を行い、応答時間を揃えるためのハッシュ。
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("storefront-dummy-password"), bcrypt.DefaultCost)

// SessionDestroyer はセッション破棄のインターフェース。
type SessionDestroyer interface {
	Destroy(ctx context.Context, id string) error
}

// ProfileInput はプロフィール更新の入力。
// Avatarがnilの場合はアバターを変更しない。
type ProfileInput struct {
	Phone   string
	Address string
	Avatar  io.Reader
}

// Service は認証とプロフィールに関するビジネスロジックを提供する。
type Service struct {
	accounts repository.AccountRepository
	sessions SessionDestroyer
	uploader media.Uploader
}

// NewService はServiceを生成する。
func NewService(
	accounts repository.AccountRepository,
	sessions SessionDestroyer,
	uploader media.Uploader,
) *Service {
	return &Service{
		accounts: accounts,
		sessions: sessions,
		uploader: uploader,
	}
}

// Login はユーザー名とパスワードを検証し、セッションをログイン済みにする。
// メール確認が済んでいないアカウントは、パスワードが正しくてもログインできない。
func (s *Service) Login(ctx context.Context, binder session.Binder, username, password string) (*model.Account, error) {
	account, err := s.accounts.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	hash := dummyHash
	if account != nil {
		hash = []byte(account.PasswordHash)
	}
	match := bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
	if account == nil || !match || !account.IsActive {
		return nil, model.NewInvalidCredentialsError()
	}

	if err := binder.Login(ctx, account.ID); err != nil {
		return nil, err
	}

	slog.Info("user logged in", slog.String("user_id", account.ID))
	return account, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		return err
	}
	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はログイン中のアカウントを返す。
func (s *Service) GetCurrentUser(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil || !account.IsActive {
		return nil, model.NewAccountNotFoundError()
	}
	return account, nil
}

// GetProfile はアカウントとプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, accountID string) (*model.AccountWithProfile, error) {
	account, err := s.accounts.FindWithProfile(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if account == nil || !account.IsActive {
		return nil, model.NewAccountNotFoundError()
	}
	return account, nil
}

// UpdateProfile は電話番号・住所を上書きし、アバターが指定されていれば保存して差し替える。
func (s *Service) UpdateProfile(ctx context.Context, accountID string, in ProfileInput) (*model.AccountWithProfile, error) {
	phone := strings.TrimSpace(in.Phone)
	address := strings.TrimSpace(in.Address)
	if utf8.RuneCountInString(phone) > maxPhoneLength {
		return nil, model.NewValidationError("phone", fmt.Sprintf("%d文字以内で入力してください", maxPhoneLength))
	}
	if utf8.RuneCountInString(address) > maxAddressLength {
		return nil, model.NewValidationError("address", fmt.Sprintf("%d文字以内で入力してください", maxAddressLength))
	}

	current, err := s.GetProfile(ctx, accountID)
	if err != nil {
		return nil, err
	}

	profile := current.Profile
	profile.Phone = phone
	profile.Address = address

	if in.Avatar != nil {
		key, err := media.SaveImage(ctx, s.uploader, media.FolderAvatars, in.Avatar)
		switch {
		case errors.Is(err, media.ErrNotImage), errors.Is(err, media.ErrTooLarge):
			return nil, model.NewValidationError("avatar", "JPEG・PNG・GIF・WebP形式の5MB以下の画像を指定してください")
		case err != nil:
			return nil, fmt.Errorf("failed to save avatar: %w", err)
		}
		profile.Avatar = key
	}

	if err := s.accounts.UpdateProfile(ctx, &profile); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	current.Profile = profile
	return current, nil
}
