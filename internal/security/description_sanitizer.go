// Package security はイベント入力の安全性確保を提供する。
//
// DescriptionSanitizer は主催者が入力したイベント説明文から危険なHTMLを除去する。
// ImageGuard は主催者が指定した画像URLをSSRFに配慮して検証する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizer はイベント説明文のサニタイズ。
// bluemondayの許可リストポリシーを保持し、並行に使用できる。
type DescriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, ul, ol, li, strong, em, a
//   - aタグ: httpsの絶対URLのみ、target="_blank" と rel="noopener noreferrer" を付与
//   - script, iframe, style, img および全てのon*属性は除去
func NewDescriptionSanitizer() *DescriptionSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("p", "br", "ul", "ol", "li", "strong", "em")

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &DescriptionSanitizer{policy: p}
}

// Sanitize は説明文をサニタイズし、前後の空白を除去して返す。
func (s *DescriptionSanitizer) Sanitize(description string) string {
	return strings.TrimSpace(s.policy.Sanitize(description))
}
