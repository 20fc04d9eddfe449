// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はユーザー投稿レシピのテキストフィールドを無害化し、
// 保存データを経由したXSS攻撃からユーザーを保護する。
// レシピの各フィールドはプレーンテキストであり、マークアップは一切許可しない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキスト無害化機能のインターフェースを定義する。
// レシピの作成・更新時、永続化の前に使用される。
type TextSanitizerService interface {
	// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
	// 前後の空白は取り除かれる。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(s string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayの厳格ポリシーを保持し、スレッドセーフに無害化処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはタグも属性も一切許可せず、すべて除去する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
// bluemondayはエンティティ参照へエスケープするため、プレーンテキストとして
// 保存できるようアンエスケープして戻す。
func (s *textSanitizer) Sanitize(text string) string {
	cleaned := s.policy.Sanitize(text)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
