package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/hitoshi/authdesk/internal/database"
	"github.com/hitoshi/authdesk/internal/model"
)

// PostgresProfileRepoはProfileRepositoryインターフェースを満たすことを検証
func TestPostgresProfileRepo_ImplementsInterface(t *testing.T) {
	var _ ProfileRepository = (*PostgresProfileRepo)(nil)
}

func TestNewPostgresProfileRepo_Initializes(t *testing.T) {
	repo := NewPostgresProfileRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

func TestNullableString(t *testing.T) {
	if got := nullableString(sql.NullString{}); got != nil {
		t.Errorf("expected nil for NULL, got %q", *got)
	}
	got := nullableString(sql.NullString{String: "Ada", Valid: true})
	if got == nil || *got != "Ada" {
		t.Errorf("expected Ada, got %v", got)
	}
}

// setupProfileDB はテスト用データベースに接続し、マイグレーションを適用する。
// TEST_DATABASE_URLが未設定、または接続できない場合はスキップする。
func setupProfileDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if err := database.RunMigrations(dbURL); err != nil {
		db.Close()
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresProfileRepo_InsertFindUpsert(t *testing.T) {
	db := setupProfileDB(t)
	repo := NewPostgresProfileRepo(db)
	ctx := context.Background()

	id := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	// 未作成のプロフィールはnil
	got, err := repo.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil profile, got %+v", got)
	}

	if err := repo.Insert(ctx, &model.Profile{ID: id, Email: "user@example.com", UpdatedAt: now}); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}

	// 2回目のInsertは既存の行を変更しない
	name := "Someone Else"
	if err := repo.Insert(ctx, &model.Profile{ID: id, Email: "other@example.com", FullName: &name, UpdatedAt: now}); err != nil {
		t.Fatalf("second Insert returned error: %v", err)
	}

	got, err = repo.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if got.Email != "user@example.com" || got.FullName != nil || got.AvatarURL != nil {
		t.Errorf("profile after insert = %+v", got)
	}

	fullName := "Ada Lovelace"
	avatar := "https://images.example.com/ada.png"
	later := now.Add(time.Minute)
	if err := repo.Upsert(ctx, &model.Profile{
		ID:        id,
		Email:     "ada@example.com",
		FullName:  &fullName,
		AvatarURL: &avatar,
		UpdatedAt: later,
	}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	got, err = repo.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if got.Email != "ada@example.com" {
		t.Errorf("Email = %q", got.Email)
	}
	if got.FullName == nil || *got.FullName != fullName {
		t.Errorf("FullName = %v", got.FullName)
	}
	if got.AvatarURL == nil || *got.AvatarURL != avatar {
		t.Errorf("AvatarURL = %v", got.AvatarURL)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
	}
}
