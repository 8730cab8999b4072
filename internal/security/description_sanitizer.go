// Package security はアプリケーションのセキュリティ機能を提供する。
//
// 管理画面から入力された商品説明のHTMLを許可リストでサニタイズする機能と、
// 商品画像をURLから取り込む際のSSRF対策を含む。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizer は商品説明HTMLのサニタイズ機能のインターフェース。
// 商品の作成・更新時に保存前のHTMLへ適用する。
type DescriptionSanitizer interface {
	// Sanitize は許可リストに含まれるタグと属性のみを残したHTMLを返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// descriptionSanitizer はbluemondayのポリシーを保持するDescriptionSanitizerの実装。
// ポリシーは生成後に変更しないため、並行して使用できる。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer は商品説明用のポリシーでサニタイザーを生成する。
//   - 見出し(h3, h4)、段落、改行、リスト、強調、引用を許可
//   - aタグのhrefとimgタグのsrcはhttpsの絶対URLのみ
//   - 外部リンクにはtarget="_blank"とrel="noopener noreferrer"を付与
//   - 上記以外のタグ（script, style, iframe, form等）とon*属性は除去
func NewDescriptionSanitizer() *descriptionSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h3", "h4", "p", "br",
		"ul", "ol", "li",
		"strong", "em", "b", "i",
		"blockquote",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("https")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &descriptionSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズして返す。
func (s *descriptionSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

var _ DescriptionSanitizer = (*descriptionSanitizer)(nil)
