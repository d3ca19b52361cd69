// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/authdesk/internal/model"
)

// ProfileRepository はプロフィールデータの永続化インターフェース。
// プロフィールのIDは認証サービスのユーザーIDと一致する。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// Insert はプロフィールを作成する。既に存在する場合は何もしない。
	Insert(ctx context.Context, profile *model.Profile) error

	// Upsert はプロフィールを作成または上書き更新する。
	Upsert(ctx context.Context, profile *model.Profile) error
}
