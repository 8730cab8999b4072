package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestImageURLGuard_ValidateURL(t *testing.T) {
	guard := NewImageURLGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"公開https", "https://cdn.example.com/products/p.png", false},
		{"公開http", "http://images.example.org/a.jpg", false},
		{"公開IP", "https://93.184.216.34/a.png", false},
		{"空文字", "", true},
		{"ftpスキーム", "ftp://example.com/a.png", true},
		{"fileスキーム", "file:///etc/passwd", true},
		{"ホストなし", "https:///a.png", true},
		{"プライベートIP 10系", "http://10.0.0.5/a.png", true},
		{"プライベートIP 192.168系", "http://192.168.1.1/a.png", true},
		{"ループバック", "http://127.0.0.1:8080/a.png", true},
		{"メタデータIP", "http://169.254.169.254/latest/meta-data/", true},
		{"IPv6ループバック", "http://[::1]/a.png", true},
		{"IPv4射影IPv6", "http://[::ffff:127.0.0.1]/a.png", true},
		{"localhost", "http://LOCALHOST/a.png", true},
		{"GCPメタデータ", "http://metadata.google.internal/computeMetadata/v1/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestImageURLGuard_NewSafeClient(t *testing.T) {
	guard := NewImageURLGuard()
	client := guard.NewSafeClient(5 * time.Second)

	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("SSRF対策のTransportが設定されていない")
	}
}

// httptestサーバーは127.0.0.1で起動するため、接続時の検証で遮断される。
func TestImageURLGuard_NewSafeClient_BlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
	}))
	defer ts.Close()

	client := NewImageURLGuard().NewSafeClient(5 * time.Second)
	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("ループバックへのリクエストが遮断されなかった")
	}
}
