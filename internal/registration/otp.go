package registration

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// OTPExpiry は確認コードの有効期間。確認処理とリーパーで共有する。
const OTPExpiry = time.Hour

var otpSpace = big.NewInt(1_000_000)

// GenerateCode は000000〜999999の一様な6桁の確認コードを生成する。
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// IsExpired はissuedAtに発行されたコードがnow時点で期限切れかを返す。
// 発行日時が無いコードは期限切れとして扱う。
func IsExpired(issuedAt *time.Time, now time.Time) bool {
	if issuedAt == nil {
		return true
	}
	return !now.Before(issuedAt.Add(OTPExpiry))
}
