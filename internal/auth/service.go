// Package auth はメールアドレス＋パスワード認証とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/tastify/internal/model"
	"github.com/hitoshi/tastify/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	profileRepo repository.ProfileRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	profileRepo repository.ProfileRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		profileRepo: profileRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// Signup は新規ユーザーを作成し、セッションを発行する。
// ユーザー、認証情報、空のお気に入りを持つプロフィールドキュメントを同時に作成する。
// メールアドレスが既に使用されている場合はAuthErrorを返す。
func (s *Service) Signup(ctx context.Context, email, password, displayName string) (*model.Session, *model.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	// 1. 重複チェック
	existing, err := s.userRepo.FindCredentialByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("認証情報の検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, nil, model.NewEmailInUseError(email)
	}

	// 2. パスワードのハッシュ化
	hash, err := hashPassword(password)
	if err != nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	// 3. ユーザーと認証情報を作成
	now := time.Now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      displayName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cred := &model.Credential{
		UserID:       user.ID,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
	}

	if err := s.userRepo.CreateWithCredential(ctx, user, cred); err != nil {
		return nil, nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	// 4. 空のプロフィールドキュメントを作成
	profile := &model.Profile{
		UserID:    user.ID,
		Name:      displayName,
		Favorites: []model.FavoriteRecipe{},
		UpdatedAt: now,
	}
	if err := s.profileRepo.Create(ctx, profile); err != nil {
		return nil, nil, fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("email", email),
	)

	// 5. セッションを発行
	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}

	return session, user, nil
}

// Login はメールアドレスとパスワードで認証し、セッションを発行する。
// 認証失敗の場合はAuthErrorを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	email = normalizeEmail(email)

	cred, err := s.userRepo.FindCredentialByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("認証情報の検索に失敗しました: %w", err)
	}
	if cred == nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	if err := verifyPassword(cred.PasswordHash, password); err != nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByID(ctx, cred.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, nil, model.NewUserNotFoundError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
	)

	return session, user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("セッションの検索に失敗しました: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// normalizeEmail はメールアドレスを正規化する（前後空白除去と小文字化）。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
