package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/polisync/internal/model"
	"github.com/hitoshi/polisync/internal/repository"
)

// WelcomeMailer はアカウント作成時のウェルカムメール送信インターフェース。
type WelcomeMailer interface {
	SendWelcome(ctx context.Context, to, name string) error
}

// Service は外部IdPの身元情報とローカルユーザーの対応付け（ユーザーディレクトリ）を提供する。
type Service struct {
	users  repository.UserRepository
	mailer WelcomeMailer
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, mailer WelcomeMailer) *Service {
	return &Service{
		users:  users,
		mailer: mailer,
	}
}

// FindOrCreate は検証済みの身元情報からローカルユーザーを検索または作成する。
// 既存ユーザーの場合はIdPが供給した非空のプロフィール値で上書きし、最終ログイン日時を更新する。
// 新規ユーザーの場合はrole=userで作成し、ウェルカムメールを非同期で送信する。
// 2つ目の返り値は新規作成されたかどうかを示す。
func (s *Service) FindOrCreate(ctx context.Context, ident *Identity) (*model.User, bool, error) {
	existing, err := s.users.FindBySubjectID(ctx, ident.SubjectID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find user by subject ID: %w", err)
	}

	now := time.Now()

	if existing != nil {
		// IdPがプロフィール値を供給した場合のみ上書きし、なければ既存値を維持する
		if ident.DisplayName != "" {
			existing.DisplayName = ident.DisplayName
		}
		if ident.PhotoURL != "" {
			existing.PhotoURL = ident.PhotoURL
		}
		if ident.Provider != "" {
			existing.Provider = ident.Provider
		}
		existing.LastLogin = &now
		existing.UpdatedAt = now

		if err := s.users.UpdateProfile(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("failed to update user profile: %w", err)
		}

		slog.Info("existing user logged in",
			slog.String("user_id", existing.ID),
			slog.String("provider", ident.Provider),
		)

		return existing, false, nil
	}

	// 新規ユーザー: roleはストレージ層のデフォルトに依存せず、ここで明示的にuserを割り当てる
	newUser := &model.User{
		ID:          uuid.New().String(),
		SubjectID:   ident.SubjectID,
		Email:       ident.Email,
		DisplayName: ident.DisplayName,
		PhotoURL:    ident.PhotoURL,
		Provider:    ident.Provider,
		Role:        model.RoleUser,
		LastLogin:   &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.users.Create(ctx, newUser)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	// UPSERTの競合に敗れた場合は既存行が返る（同時初回ログインでもユーザー行はちょうど1つ）
	isNew := created.ID == newUser.ID
	if !isNew {
		slog.Info("concurrent first login resolved to existing user",
			slog.String("user_id", created.ID),
		)
		return created, false, nil
	}

	slog.Info("new user created",
		slog.String("user_id", created.ID),
		slog.String("email", created.Email),
		slog.String("provider", created.Provider),
	)

	// ウェルカムメールはベストエフォート: 失敗してもログインフローを失敗させない
	s.sendWelcomeAsync(created)

	return created, true, nil
}

// GetBySubjectID は外部IdPのsubjectでユーザーを取得する。見つからない場合はnilを返す。
func (s *Service) GetBySubjectID(ctx context.Context, subjectID string) (*model.User, error) {
	user, err := s.users.FindBySubjectID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by subject ID: %w", err)
	}
	return user, nil
}

// sendWelcomeAsync はウェルカムメールをバックグラウンドで送信する。
// リクエストのコンテキストには紐付けず、送信失敗はログに記録して握りつぶす。
func (s *Service) sendWelcomeAsync(user *model.User) {
	if s.mailer == nil {
		return
	}

	name := user.DisplayName
	if name == "" {
		name = "User"
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.mailer.SendWelcome(ctx, user.Email, name); err != nil {
			slog.Error("failed to send welcome email",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}
