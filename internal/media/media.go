// Package media は商品画像・カテゴリ画像・アバターの保存を提供する。
// 保存先はS3互換オブジェクトストレージまたはローカルディレクトリ。
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxImageSize はアップロード・取り込みを許可する画像の最大サイズ。
const MaxImageSize = 5 << 20

// 保存先フォルダ
const (
	FolderAvatars    = "avatars"
	FolderCategories = "categories"
	FolderProducts   = "products"
)

// ErrNotImage は画像として認識できないデータを表す。
var ErrNotImage = errors.New("not a supported image")

// ErrTooLarge はMaxImageSizeを超えるデータを表す。
var ErrTooLarge = errors.New("image too large")

// Uploader はメディアの保存先インターフェース。
type Uploader interface {
	// Upload はrの内容をfolder配下に保存し、オブジェクトキーを返す。
	Upload(ctx context.Context, folder, contentType string, r io.Reader) (string, error)
	// URL はオブジェクトキーの公開URLを返す。
	URL(key string) string
}

// imageExtensions は許可する画像形式と拡張子。
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// NewKey はfolder/年/月/UUID+拡張子 形式のオブジェクトキーを生成する。
func NewKey(folder, contentType string, now time.Time) string {
	return path.Join(
		folder,
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		uuid.New().String()+imageExtensions[contentType],
	)
}

// ReadImage はrから最大MaxImageSizeまで読み込み、内容から画像形式を判定する。
// クライアントが申告したContent-Typeは信用しない。
func ReadImage(r io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > MaxImageSize {
		return nil, "", ErrTooLarge
	}
	contentType := http.DetectContentType(data)
	if _, ok := imageExtensions[contentType]; !ok {
		return nil, "", ErrNotImage
	}
	return data, contentType, nil
}

// SaveImage は画像を検証してから保存し、オブジェクトキーを返す。
func SaveImage(ctx context.Context, u Uploader, folder string, r io.Reader) (string, error) {
	data, contentType, err := ReadImage(r)
	if err != nil {
		return "", err
	}
	return u.Upload(ctx, folder, contentType, bytes.NewReader(data))
}

// joinURL はbaseとkeyを1つのスラッシュで連結する。
func joinURL(base, key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
