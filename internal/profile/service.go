// Package profile はプロフィール管理のドメインロジックを提供する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/authdesk/internal/model"
	"github.com/hitoshi/authdesk/internal/repository"
	"github.com/hitoshi/authdesk/internal/security"
	"github.com/hitoshi/authdesk/internal/validation"
)

// ErrInvalidUserID はユーザーIDがUUID形式でない場合のエラー。
var ErrInvalidUserID = errors.New("invalid user ID")

// 画像URLの検証エラーメッセージ
const (
	msgAvatarUnsafe      = "Avatar URL must be a public https address"
	msgAvatarUnreachable = "Avatar image could not be loaded"
)

// Config はプロフィールサービスの設定。
type Config struct {
	// ProbeAvatars がtrueの場合、保存前に画像URLへHEADリクエストを送って確認する。
	ProbeAvatars bool
}

// Service はプロフィール管理のサービス層。
type Service struct {
	repo      repository.ProfileRepository
	sanitizer security.TextSanitizerService
	avatars   security.AvatarGuardService
	config    Config
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.ProfileRepository,
	sanitizer security.TextSanitizerService,
	avatars security.AvatarGuardService,
	config Config,
) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		avatars:   avatars,
		config:    config,
		now:       time.Now,
	}
}

// Get はユーザーのプロフィールを取得する。未作成の場合はnilを返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.Profile, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}

	p, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// CreateForNewUser はサインアップ直後のユーザーに空のプロフィールを作成する。
// 既に存在する場合は何もしない。
func (s *Service) CreateForNewUser(ctx context.Context, user *model.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	if _, err := uuid.Parse(user.ID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, user.ID)
	}

	if err := s.repo.Insert(ctx, &model.Profile{
		ID:        user.ID,
		Email:     user.Email,
		UpdatedAt: s.now(),
	}); err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	slog.Info("profile created", slog.String("user_id", user.ID))
	return nil
}

// Update は検証済みの入力でプロフィールを更新する。
// 氏名はHTMLタグを除去して保存する。画像URLが安全でない場合は
// *model.ValidationError を返す。
func (s *Service) Update(ctx context.Context, userID string, in validation.ProfileInput) (*model.Profile, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}

	p := &model.Profile{
		ID:        userID,
		Email:     in.Email,
		UpdatedAt: s.now(),
	}

	if name := s.sanitizer.SanitizeText(in.FullName); name != "" {
		p.FullName = &name
	}

	if in.AvatarURL != "" {
		if verr := s.checkAvatar(ctx, in.AvatarURL); verr != nil {
			return nil, verr
		}
		avatar := in.AvatarURL
		p.AvatarURL = &avatar
	}

	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	slog.Info("profile updated", slog.String("user_id", userID))
	return p, nil
}

// checkAvatar は画像URLを検証し、問題があればValidationErrorを返す。
func (s *Service) checkAvatar(ctx context.Context, rawURL string) *model.ValidationError {
	if err := s.avatars.ValidateURL(rawURL); err != nil {
		slog.Info("avatar URL rejected", slog.String("error", err.Error()))
		verr := model.NewValidationError()
		verr.Add("avatarUrl", msgAvatarUnsafe)
		return verr
	}

	if !s.config.ProbeAvatars {
		return nil
	}
	if err := s.avatars.Probe(ctx, rawURL); err != nil {
		slog.Info("avatar probe failed", slog.String("error", err.Error()))
		verr := model.NewValidationError()
		verr.Add("avatarUrl", msgAvatarUnreachable)
		return verr
	}
	return nil
}
