package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// LocalUploader はローカルディレクトリへ保存するUploader。開発環境用。
type LocalUploader struct {
	dir     string
	baseURL string
	now     func() time.Time
}

// NewLocalUploader はLocalUploaderを生成する。baseURLは配信側の公開URL。
func NewLocalUploader(dir, baseURL string) *LocalUploader {
	return &LocalUploader{dir: dir, baseURL: baseURL, now: time.Now}
}

// Upload はファイルを書き込む。書き込みに失敗した場合は途中のファイルを残さない。
func (u *LocalUploader) Upload(ctx context.Context, folder, contentType string, r io.Reader) (string, error) {
	key := NewKey(folder, contentType, u.now().UTC())
	dst := filepath.Join(u.dir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create media file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to close media file: %w", err)
	}
	return key, nil
}

// URL はファイルの公開URLを返す。
func (u *LocalUploader) URL(key string) string {
	return joinURL(u.baseURL, key)
}
