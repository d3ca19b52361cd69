// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はユーザーが入力したプレーンテキスト（氏名など）から
// HTMLタグを取り除く。AvatarGuardService はプロフィール画像URLの安全性を検証する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はプレーンテキストのサニタイズ機能のインターフェースを定義する。
// プロフィール保存前に使用される。
type TextSanitizerService interface {
	// SanitizeText は全てのHTMLタグを除去し、連続する空白を1つにまとめたテキストを返す。
	// 出力はエスケープされていないプレーンテキストで、表示時にテンプレートがエスケープする。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyは全ての要素を除去する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは&や<をエンティティに変換するため元の文字に戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.Fields(text), " ")
}
