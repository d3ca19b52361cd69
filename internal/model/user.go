// Package model はドメインモデルを定義する。
package model

import "time"

// User は認証サービスが管理するユーザーを表す。
// このアプリケーションからは読み取り専用。
type User struct {
	ID               string
	Email            string
	CreatedAt        time.Time
	EmailConfirmedAt *time.Time
	LastSignInAt     *time.Time
}

// EmailConfirmed はメールアドレスが確認済みかを返す。
func (u *User) EmailConfirmed() bool {
	return u.EmailConfirmedAt != nil
}

// Profile はprofilesテーブルの1行を表す。
// ユーザーIDごとに1行で、サインアップ時に作成され、削除はしない。
type Profile struct {
	ID        string
	Email     string
	FullName  *string
	AvatarURL *string
	UpdatedAt time.Time
}

// DisplayName は表示用の名前を返す。氏名が未設定の場合はメールアドレスを返す。
func (p *Profile) DisplayName() string {
	if p.FullName != nil && *p.FullName != "" {
		return *p.FullName
	}
	return p.Email
}
