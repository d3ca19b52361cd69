// Package validation はフォーム入力の形式検証を提供する。
// 認証サービスへの呼び出し前に実行され、I/Oは一切行わない。
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/idna"

	"github.com/hitoshi/authdesk/internal/model"
)

const (
	// MinPasswordLength はサインアップ時のパスワード最小文字数。
	MinPasswordLength = 8
	// MaxPasswordLength はパスワード最大文字数（認証サービス側のbcrypt上限に合わせる）。
	MaxPasswordLength = 72
	// MaxFullNameLength は氏名の最大文字数。
	MaxFullNameLength = 100
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SignInInput はサインインフォームの検証済み入力。
type SignInInput struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,max=72"`
}

// SignUpInput はサインアップフォームの検証済み入力。
type SignUpInput struct {
	Email           string `form:"email" validate:"required,email"`
	Password        string `form:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `form:"confirmPassword" validate:"required,eqfield=Password"`
}

// ProfileInput はプロフィール編集フォームの検証済み入力。
type ProfileInput struct {
	FullName  string `form:"fullName" validate:"max=100"`
	Email     string `form:"email" validate:"required,email"`
	AvatarURL string `form:"avatarUrl" validate:"omitempty,url"`
}

// messages はフィールドと検証タグの組み合わせごとの表示メッセージ。
var messages = map[string]map[string]string{
	"email": {
		"required": "Email is required",
		"email":    "Please enter a valid email address",
	},
	"password": {
		"required": "Password is required",
		"min":      fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength),
		"max":      fmt.Sprintf("Password must be at most %d characters long", MaxPasswordLength),
	},
	"confirmPassword": {
		"required": "Please confirm your password",
		"eqfield":  "Passwords don't match",
	},
	"fullName": {
		"max": fmt.Sprintf("Full name must be at most %d characters long", MaxFullNameLength),
	},
	"avatarUrl": {
		"url": "Please enter a valid URL",
	},
}

// ValidateSignIn はサインインフォームを検証する。
func ValidateSignIn(email, password string) (SignInInput, *model.ValidationError) {
	in := SignInInput{Password: password}
	normalized, ok := NormalizeEmail(email)
	in.Email = normalized

	verr := check(&in)
	if !ok && !verr.Has("email") {
		verr.Add("email", messages["email"]["email"])
	}
	if verr.Empty() {
		return in, nil
	}
	return in, verr
}

// ValidateSignUp はサインアップフォームを検証する。
// パスワード長と確認用パスワードの一致を検証する。
func ValidateSignUp(email, password, confirmPassword string) (SignUpInput, *model.ValidationError) {
	in := SignUpInput{Password: password, ConfirmPassword: confirmPassword}
	normalized, ok := NormalizeEmail(email)
	in.Email = normalized

	verr := check(&in)
	if !ok && !verr.Has("email") {
		verr.Add("email", messages["email"]["email"])
	}
	if verr.Empty() {
		return in, nil
	}
	return in, verr
}

// ValidateProfile はプロフィール編集フォームを検証する。
func ValidateProfile(fullName, email, avatarURL string) (ProfileInput, *model.ValidationError) {
	in := ProfileInput{
		FullName:  strings.TrimSpace(fullName),
		AvatarURL: strings.TrimSpace(avatarURL),
	}
	normalized, ok := NormalizeEmail(email)
	in.Email = normalized

	verr := check(&in)
	if !ok && !verr.Has("email") {
		verr.Add("email", messages["email"]["email"])
	}
	if verr.Empty() {
		return in, nil
	}
	return in, verr
}

// NormalizeEmail はメールアドレスの前後空白を除去し、ドメイン部を小文字のASCII（IDNA）に変換する。
// ローカル部は変更しない。変換できない場合はfalseを返す。
func NormalizeEmail(email string) (string, bool) {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return email, email == ""
	}

	local, domain := email[:at], email[at+1:]
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return email, false
	}
	return local + "@" + strings.ToLower(ascii), true
}

// check は構造体タグに従って検証し、フィールド名をキーとするエラーを返す。
func check(s any) *model.ValidationError {
	verr := model.NewValidationError()

	err := validate.Struct(s)
	if err == nil {
		return verr
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add("form", "Invalid form data")
		return verr
	}

	for _, fe := range fieldErrs {
		field := formName(fe)
		verr.Add(field, message(field, fe.Tag()))
	}
	return verr
}

// formName はstructフィールドのformタグ名を返す。
func formName(fe validator.FieldError) string {
	switch fe.StructField() {
	case "Email":
		return "email"
	case "Password":
		return "password"
	case "ConfirmPassword":
		return "confirmPassword"
	case "FullName":
		return "fullName"
	case "AvatarURL":
		return "avatarUrl"
	default:
		return strings.ToLower(fe.StructField())
	}
}

func message(field, tag string) string {
	if byTag, ok := messages[field]; ok {
		if msg, ok := byTag[tag]; ok {
			return msg
		}
	}
	return fmt.Sprintf("%s is invalid", field)
}
