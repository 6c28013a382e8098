// Package security はアプリケーションのセキュリティ機能を提供する。
//
// CopySanitizer はランディングページの文言（設定ファイルで差し替え可能）を
// 描画前にサニタイズする。bluemondayの許可リストベースのポリシーを使用する。
package security

import (
	"html"
	"html/template"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// CopySanitizer は文言のサニタイズ機能のインターフェースを定義する。
type CopySanitizer interface {
	// Inline はインライン要素のみを含むHTML断片を安全なHTMLとして返す。
	// 許可タグ: strong, em, b, i, br, a。aのhrefはhttps/mailtoまたは相対パスのみ。
	Inline(raw string) template.HTML

	// Text はすべてのタグを除去したプレーンテキストを返す。
	// 見出し、バッジ、alt属性など、HTMLを許さない箇所に使用する。
	Text(raw string) string
}

// copySanitizer はCopySanitizerの実装。
// ポリシーは生成後に変更しないため、並行利用に安全。
type copySanitizer struct {
	inline *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewCopySanitizer はCopySanitizerの新しいインスタンスを生成する。
func NewCopySanitizer() CopySanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("strong", "em", "b", "i", "br")

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool { return true })
	p.AllowURLSchemeWithCustomPolicy("mailto", func(u *url.URL) bool { return true })

	return &copySanitizer{
		inline: p,
		strict: bluemonday.StrictPolicy(),
	}
}

// Inline はHTML断片をサニタイズする。
func (s *copySanitizer) Inline(raw string) template.HTML {
	return template.HTML(strings.TrimSpace(s.inline.Sanitize(raw)))
}

// Text はタグを除去する。bluemondayがエスケープした実体参照は元に戻し、
// 出力時のエスケープはhtml/templateに任せる。
func (s *copySanitizer) Text(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(raw)))
}
