package profile

import (
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/authdesk/internal/model"
)

// avatarServiceURL はイニシャルから画像を生成する外部サービスのURL。
const avatarServiceURL = "https://ui-avatars.com/api/"

// DisplayAvatar は表示用のプロフィール画像URLを返す。
// 画像URLが未設定の場合は表示名のイニシャルから生成した画像URLを返す。
func DisplayAvatar(p *model.Profile, fallbackName string) string {
	name := fallbackName
	if p != nil {
		if p.AvatarURL != nil && *p.AvatarURL != "" {
			return *p.AvatarURL
		}
		name = p.DisplayName()
	}
	return GeneratedAvatarURL(name)
}

// GeneratedAvatarURL はイニシャル画像のURLを返す。
func GeneratedAvatarURL(name string) string {
	q := url.Values{
		"name":       {Initials(name)},
		"background": {"3b82f6"},
		"color":      {"ffffff"},
		"size":       {"128"},
	}
	return avatarServiceURL + "?" + q.Encode()
}

// Initials は名前の各単語の頭文字を大文字で最大2文字返す。
// 空の場合は "?" を返す。
func Initials(name string) string {
	var b strings.Builder
	n := 0
	for _, word := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
		if n++; n == 2 {
			break
		}
	}
	if n == 0 {
		return "?"
	}
	return b.String()
}

// FormatDate は日付を "January 2, 2006" 形式で返す。
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("January 2, 2006")
}

// FormatDateTime は日時を "Jan 2, 2006, 03:04 PM" 形式で返す。
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006, 03:04 PM")
}
