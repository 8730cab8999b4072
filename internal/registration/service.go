// Package registration はメールOTPによるアカウント登録と確認を提供する。
//
// 登録要求は未確認アカウントを作成（または再利用）して確認コードをメール送信し、
// 訪問者セッションにアカウントを紐付ける。確認要求はコードの期限と一致を検査し、
// 成功すればアカウントを有効化してログイン状態にする。
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/storefront/internal/clock"
	mailer "github.com/hitoshi/storefront/internal/mail"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/session"
)

// 入力制約
const (
	maxUsernameLength = 150
	minPasswordLength = 5
	maxPasswordLength = 128
)

// 登録結果のメトリクスラベル
const (
	outcomeCreated     = "created"
	outcomeReused      = "reused"
	outcomeRejected    = "rejected"
	outcomeEmailFailed = "email_failed"
)

// RegisterInput は登録要求の入力。
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// IssueResult は確認コード発行の結果。
type IssueResult struct {
	Account *model.Account
	Emailed bool
	Reused  bool // 既存の未確認アカウントを再利用した場合true
}

// EmailDeliveryError は確認コードのメール送信失敗を表す。
// アカウントは確認待ちのままセッションに紐付いている。
type EmailDeliveryError struct {
	Err error
}

func (e *EmailDeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver otp email: %v", e.Err)
}

// Unwrap は送信失敗の原因とAPIエラーの両方を返す。
func (e *EmailDeliveryError) Unwrap() []error {
	return []error{e.Err, model.NewEmailDeliveryError()}
}

// VerifyResult は確認処理の結果。
type VerifyResult int

const (
	NoPendingVerification VerifyResult = iota
	AccountMissing
	Expired
	Mismatch
	Verified
)

// String はメトリクスラベルとログに使う名前を返す。
func (r VerifyResult) String() string {
	switch r {
	case NoPendingVerification:
		return "no_pending"
	case AccountMissing:
		return "account_missing"
	case Expired:
		return "expired"
	case Mismatch:
		return "mismatch"
	case Verified:
		return "verified"
	default:
		return "unknown"
	}
}

// Err は結果に対応するAPIエラーを返す。Verifiedの場合はnil。
func (r VerifyResult) Err() error {
	switch r {
	case NoPendingVerification:
		return model.NewSessionExpiredError()
	case AccountMissing:
		return model.NewAccountMissingError()
	case Expired:
		return model.NewOTPExpiredError()
	case Mismatch:
		return model.NewOTPMismatchError()
	default:
		return nil
	}
}

// errEmailActive は有効化済みアカウントのメールアドレスで登録しようとしたことを表す。
var errEmailActive = errors.New("email belongs to an active account")

// Service は登録と確認のサービス層。
type Service struct {
	accounts repository.AccountRepository
	sender   mailer.Sender
	clock    clock.Clock
	metrics  metrics.MetricsCollector
	mailFrom string

	generateCode func() (string, error)
	hashCost     int
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	accounts repository.AccountRepository,
	sender mailer.Sender,
	clk clock.Clock,
	collector metrics.MetricsCollector,
	mailFrom string,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		accounts:     accounts,
		sender:       sender,
		clock:        clk,
		metrics:      collector,
		mailFrom:     mailFrom,
		generateCode: GenerateCode,
		hashCost:     bcrypt.DefaultCost,
	}
}

// Issue は登録要求を処理し、確認コードを発行する。
//
// メール送信に失敗した場合は、Emailed=falseの結果と*EmailDeliveryErrorの両方を返す。
// この場合もアカウントは確認待ちのまま残り、セッションへの紐付けも取り消さない。
func (s *Service) Issue(ctx context.Context, binder session.Binder, in RegisterInput) (*IssueResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		s.metrics.RecordRegistration(outcomeRejected)
		return nil, err
	}
	username := strings.TrimSpace(in.Username)
	if err := validateUsername(username); err != nil {
		s.metrics.RecordRegistration(outcomeRejected)
		return nil, err
	}
	if err := validatePassword(in.Password, username); err != nil {
		s.metrics.RecordRegistration(outcomeRejected)
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var (
		result *IssueResult
		code   string
	)
	// 同じメールアドレスの並行登録で一意制約違反になった場合は1度だけやり直す。
	// 2回目は先行した行をロックして再利用経路を通る。
	for attempt := 0; ; attempt++ {
		result, code, err = s.persist(ctx, email, username, string(hash))
		if errors.Is(err, repository.ErrEmailTaken) && attempt == 0 {
			slog.Info("登録の競合を検出したため再試行します", slog.String("email", email))
			continue
		}
		break
	}
	switch {
	case errors.Is(err, errEmailActive), errors.Is(err, repository.ErrEmailTaken):
		s.metrics.RecordRegistration(outcomeRejected)
		return nil, model.NewValidationError("email", "このメールアドレスは既に登録されています")
	case errors.Is(err, repository.ErrUsernameTaken):
		s.metrics.RecordRegistration(outcomeRejected)
		return nil, model.NewValidationError("username", "このユーザー名は既に使用されています")
	case err != nil:
		return nil, err
	}

	if err := binder.BindPending(ctx, result.Account.ID); err != nil {
		return nil, err
	}

	msg := mailer.NewOTPMessage(s.mailFrom, email, code, OTPExpiry)
	if err := s.sender.Send(ctx, msg); err != nil {
		slog.Warn("確認コードのメール送信に失敗しました",
			slog.String("account_id", result.Account.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordRegistration(outcomeEmailFailed)
		return result, &EmailDeliveryError{Err: err}
	}

	result.Emailed = true
	if result.Reused {
		s.metrics.RecordRegistration(outcomeReused)
	} else {
		s.metrics.RecordRegistration(outcomeCreated)
	}
	slog.Info("確認コードを発行しました",
		slog.String("account_id", result.Account.ID),
		slog.Bool("reused", result.Reused),
	)
	return result, nil
}

// persist は1トランザクションでアカウントの作成または再利用とOTPの設定を行う。
func (s *Service) persist(ctx context.Context, email, username, hash string) (*IssueResult, string, error) {
	var (
		result *IssueResult
		code   string
	)
	err := s.accounts.RunInTx(ctx, func(ctx context.Context, tx repository.AccountTx) error {
		now := s.clock.Now()

		existing, err := tx.FindByEmailForUpdate(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsActive {
			return errEmailActive
		}

		holder, err := tx.FindByUsername(ctx, username)
		if err != nil {
			return err
		}
		if holder != nil && (existing == nil || holder.ID != existing.ID) {
			return repository.ErrUsernameTaken
		}

		if existing != nil {
			existing.Username = username
			existing.PasswordHash = hash
			existing.UpdatedAt = now
			if err := tx.UpdatePending(ctx, existing); err != nil {
				return err
			}
			result = &IssueResult{Account: existing, Reused: true}
		} else {
			account := &model.Account{
				ID:           uuid.New().String(),
				Username:     username,
				Email:        email,
				PasswordHash: hash,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.CreatePending(ctx, account); err != nil {
				return err
			}
			result = &IssueResult{Account: account}
		}

		code, err = s.generateCode()
		if err != nil {
			return err
		}
		return tx.SetOTP(ctx, result.Account.ID, code, now)
	})
	if err != nil {
		return nil, "", err
	}
	return result, code, nil
}

// Verify はセッションに紐付いた確認待ちアカウントに対してコードを検証する。
// 返すエラーはDB障害などの基盤エラーのみで、検証の結果はVerifyResultで表す。
func (s *Service) Verify(ctx context.Context, binder session.Binder, code string) (VerifyResult, error) {
	result, err := s.verify(ctx, binder, code)
	if err != nil {
		return result, err
	}
	s.metrics.RecordVerification(result.String())
	return result, nil
}

func (s *Service) verify(ctx context.Context, binder session.Binder, code string) (VerifyResult, error) {
	accountID, ok, err := binder.PendingAccountID(ctx)
	if err != nil {
		return NoPendingVerification, err
	}
	if !ok {
		return NoPendingVerification, nil
	}

	account, err := s.accounts.FindWithProfile(ctx, accountID)
	if err != nil {
		return NoPendingVerification, fmt.Errorf("failed to load pending account: %w", err)
	}
	if account == nil {
		if err := binder.ClearPending(ctx); err != nil {
			return AccountMissing, err
		}
		return AccountMissing, nil
	}
	if account.IsActive {
		// 別のセッションで確認済み
		if err := binder.ClearPending(ctx); err != nil {
			return NoPendingVerification, err
		}
		return NoPendingVerification, nil
	}

	now := s.clock.Now()
	if IsExpired(account.Profile.OTPIssuedAt, now) {
		if err := s.accounts.DeleteByID(ctx, account.ID); err != nil {
			return Expired, fmt.Errorf("failed to delete expired account: %w", err)
		}
		if err := binder.ClearPending(ctx); err != nil {
			return Expired, err
		}
		slog.Info("期限切れの未確認アカウントを削除しました", slog.String("account_id", account.ID))
		return Expired, nil
	}

	if account.Profile.OTPCode == nil || code != *account.Profile.OTPCode {
		return Mismatch, nil
	}

	activated, err := s.accounts.Activate(ctx, account.ID, code, now)
	if err != nil {
		return NoPendingVerification, fmt.Errorf("failed to activate account: %w", err)
	}
	if !activated {
		// 読み込み後に再登録・削除・別セッションでの確認が行われた
		return s.resolveLostActivation(ctx, binder, account.ID)
	}
	if err := binder.ClearPending(ctx); err != nil {
		return Verified, err
	}
	if err := binder.Login(ctx, account.ID); err != nil {
		return Verified, err
	}
	slog.Info("アカウントを有効化しました", slog.String("account_id", account.ID))
	return Verified, nil
}

// resolveLostActivation は有効化が競合で成立しなかった場合の結果を、現在の行の状態から決める。
func (s *Service) resolveLostActivation(ctx context.Context, binder session.Binder, accountID string) (VerifyResult, error) {
	current, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return NoPendingVerification, fmt.Errorf("failed to reload pending account: %w", err)
	}
	switch {
	case current == nil:
		if err := binder.ClearPending(ctx); err != nil {
			return AccountMissing, err
		}
		return AccountMissing, nil
	case current.IsActive:
		if err := binder.ClearPending(ctx); err != nil {
			return NoPendingVerification, err
		}
		return NoPendingVerification, nil
	default:
		// 確認コードが再発行されていた
		return Mismatch, nil
	}
}

// normalizeEmail はメールアドレスを検証し、小文字化して返す。
// 表示名付きの形式は受け付けない。
func normalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", model.NewValidationError("email", "メールアドレスは必須です")
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed || addr.Name != "" {
		return "", model.NewValidationError("email", "メールアドレスの形式が正しくありません")
	}
	if len(addr.Address) > 254 {
		return "", model.NewValidationError("email", "メールアドレスが長すぎます")
	}
	return strings.ToLower(addr.Address), nil
}

// validateUsername はユーザー名が1〜150文字の英数字と@.+-_のみで構成されているかを検証する。
func validateUsername(username string) error {
	if username == "" {
		return model.NewValidationError("username", "ユーザー名は必須です")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return model.NewValidationError("username", fmt.Sprintf("ユーザー名は%d文字以内で入力してください", maxUsernameLength))
	}
	for _, r := range username {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("@.+-_", r) {
			continue
		}
		return model.NewValidationError("username", "ユーザー名に使用できない文字が含まれています")
	}
	return nil
}

func validatePassword(password, username string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength || n > maxPasswordLength {
		return model.NewValidationError("password",
			fmt.Sprintf("パスワードは%d〜%d文字で入力してください", minPasswordLength, maxPasswordLength))
	}
	if strings.EqualFold(password, username) {
		return model.NewValidationError("password", "ユーザー名と同じパスワードは使用できません")
	}
	return nil
}
