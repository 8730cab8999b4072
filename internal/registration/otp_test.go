package registration

import (
	"testing"
	"time"
)

func TestGenerateCode_Format(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode がエラーを返した: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("コード長 = %d, want 6 (%q)", len(code), code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("数字以外の文字を含む: %q", code)
			}
		}
	}
}

func TestGenerateCode_Varies(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, _ := GenerateCode()
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Errorf("50回生成して異なるコードが %d 種類しかない", len(seen))
	}
}

func TestIsExpired(t *testing.T) {
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		issuedAt *time.Time
		now      time.Time
		want     bool
	}{
		{"発行直後", &issued, issued, false},
		{"59分59秒後", &issued, issued.Add(OTPExpiry - time.Second), false},
		{"ちょうど1時間後", &issued, issued.Add(OTPExpiry), true},
		{"2時間後", &issued, issued.Add(2 * OTPExpiry), true},
		{"発行日時なし", nil, issued, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpired(tt.issuedAt, tt.now); got != tt.want {
				t.Errorf("IsExpired = %v, want %v", got, tt.want)
			}
		})
	}
}
