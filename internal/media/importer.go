package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/storefront/internal/security"
)

// ErrURLRejected は取り込み元URLが検証で拒否されたことを表す。
var ErrURLRejected = errors.New("image url rejected")

// Importer は外部URLの画像を取得して保存する。
// URLの事前検証と接続時のIP検証の両方でSSRFを防ぐ。
type Importer struct {
	guard    security.ImageURLGuard
	client   *http.Client
	uploader Uploader
}

// NewImporter はImporterを生成する。
func NewImporter(guard security.ImageURLGuard, uploader Uploader, timeout time.Duration) *Importer {
	return &Importer{
		guard:    guard,
		client:   guard.NewSafeClient(timeout),
		uploader: uploader,
	}
}

// Import はrawURLの画像を取得してfolder配下に保存し、オブジェクトキーを返す。
func (i *Importer) Import(ctx context.Context, folder, rawURL string) (string, error) {
	if err := i.guard.ValidateURL(rawURL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrURLRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return SaveImage(ctx, i.uploader, folder, resp.Body)
}
