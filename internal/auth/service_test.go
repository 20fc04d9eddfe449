package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/tastify/internal/model"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn             func(ctx context.Context, id string) (*model.User, error)
	findCredentialFn       func(ctx context.Context, email string) (*model.Credential, error)
	createWithCredentialFn func(ctx context.Context, user *model.User, cred *model.Credential) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindCredentialByEmail(ctx context.Context, email string) (*model.Credential, error) {
	if m.findCredentialFn != nil {
		return m.findCredentialFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) CreateWithCredential(ctx context.Context, user *model.User, cred *model.Credential) error {
	if m.createWithCredentialFn != nil {
		return m.createWithCredentialFn(ctx, user, cred)
	}
	return nil
}

type mockProfileRepo struct {
	createFn func(ctx context.Context, profile *model.Profile) error
}

func (m *mockProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	if m.createFn != nil {
		return m.createFn(ctx, profile)
	}
	return nil
}
func (m *mockProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	return nil, nil
}
func (m *mockProfileRepo) AppendFavorite(ctx context.Context, userID string, fav model.FavoriteRecipe) error {
	return nil
}
func (m *mockProfileRepo) RemoveFavorite(ctx context.Context, userID string, fav model.FavoriteRecipe) error {
	return nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return nil
}

func newTestService(userRepo *mockUserRepo, profileRepo *mockProfileRepo, sessionRepo *mockSessionRepo) *Service {
	return NewService(userRepo, profileRepo, sessionRepo, ServiceConfig{SessionMaxAge: 3600})
}

// --- テスト ---

// TestSignup_CreatesUserProfileAndSession はサインアップで
// ユーザー・プロフィール・セッションが作成されることを検証する。
func TestSignup_CreatesUserProfileAndSession(t *testing.T) {
	var createdUser *model.User
	var createdCred *model.Credential
	var createdProfile *model.Profile
	var createdSession *model.Session

	userRepo := &mockUserRepo{
		createWithCredentialFn: func(ctx context.Context, user *model.User, cred *model.Credential) error {
			createdUser = user
			createdCred = cred
			return nil
		},
	}
	profileRepo := &mockProfileRepo{
		createFn: func(ctx context.Context, profile *model.Profile) error {
			createdProfile = profile
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}

	svc := newTestService(userRepo, profileRepo, sessionRepo)

	session, user, err := svc.Signup(context.Background(), "Taro@Example.com", "secret123", "Taro")
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}

	if user.Email != "taro@example.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}
	if user.Name != "Taro" {
		t.Errorf("Name = %q, want %q", user.Name, "Taro")
	}
	if createdUser == nil || createdCred == nil {
		t.Fatal("user or credential was not created")
	}
	if createdCred.PasswordHash == "secret123" {
		t.Error("password was stored as plaintext")
	}
	if createdProfile == nil {
		t.Fatal("profile was not created")
	}
	if createdProfile.UserID != user.ID {
		t.Errorf("profile UserID = %q, want %q", createdProfile.UserID, user.ID)
	}
	if len(createdProfile.Favorites) != 0 {
		t.Errorf("profile favorites should start empty, got %d", len(createdProfile.Favorites))
	}
	if createdSession == nil || session.UserID != user.ID {
		t.Error("session was not issued for the new user")
	}
}

// TestSignup_DuplicateEmail は重複メールアドレスでAuthErrorになることを検証する。
func TestSignup_DuplicateEmail(t *testing.T) {
	userRepo := &mockUserRepo{
		findCredentialFn: func(ctx context.Context, email string) (*model.Credential, error) {
			return &model.Credential{UserID: "existing", Email: email}, nil
		},
	}

	svc := newTestService(userRepo, &mockProfileRepo{}, &mockSessionRepo{})

	_, _, err := svc.Signup(context.Background(), "taro@example.com", "secret123", "Taro")
	if err == nil {
		t.Fatal("expected error for duplicate email")
	}
	if !model.IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmailInUse {
		t.Errorf("expected EMAIL_IN_USE, got %v", err)
	}
}

// TestSignup_ShortPassword は短すぎるパスワードでAuthErrorになることを検証する。
func TestSignup_ShortPassword(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockProfileRepo{}, &mockSessionRepo{})

	_, _, err := svc.Signup(context.Background(), "taro@example.com", "abc", "Taro")
	if err == nil {
		t.Fatal("expected error for short password")
	}
	if !model.IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

// TestLogin_Success は正しい認証情報でログインできることを検証する。
func TestLogin_Success(t *testing.T) {
	hash, err := hashPassword("secret123")
	if err != nil {
		t.Fatalf("hashPassword returned error: %v", err)
	}

	userRepo := &mockUserRepo{
		findCredentialFn: func(ctx context.Context, email string) (*model.Credential, error) {
			return &model.Credential{UserID: "user-1", Email: email, PasswordHash: hash}, nil
		},
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "taro@example.com", Name: "Taro"}, nil
		},
	}

	svc := newTestService(userRepo, &mockProfileRepo{}, &mockSessionRepo{})

	session, user, err := svc.Login(context.Background(), "taro@example.com", "secret123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user ID = %q, want %q", user.ID, "user-1")
	}
	if session.UserID != "user-1" {
		t.Errorf("session UserID = %q, want %q", session.UserID, "user-1")
	}
	if session.ExpiresAt.Before(time.Now()) {
		t.Error("session already expired")
	}
}

// TestLogin_WrongPassword は誤ったパスワードでAuthErrorになることを検証する。
func TestLogin_WrongPassword(t *testing.T) {
	hash, _ := hashPassword("secret123")

	userRepo := &mockUserRepo{
		findCredentialFn: func(ctx context.Context, email string) (*model.Credential, error) {
			return &model.Credential{UserID: "user-1", Email: email, PasswordHash: hash}, nil
		},
	}

	svc := newTestService(userRepo, &mockProfileRepo{}, &mockSessionRepo{})

	_, _, err := svc.Login(context.Background(), "taro@example.com", "wrong-password")
	if err == nil {
		t.Fatal("expected error for wrong password")
	}
	if !model.IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

// TestLogin_UnknownEmail は未登録メールアドレスでAuthErrorになることを検証する。
func TestLogin_UnknownEmail(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockProfileRepo{}, &mockSessionRepo{})

	_, _, err := svc.Login(context.Background(), "nobody@example.com", "secret123")
	if err == nil {
		t.Fatal("expected error for unknown email")
	}
	if !model.IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

// TestLogout_DeletesSession はログアウトでセッションが削除されることを検証する。
func TestLogout_DeletesSession(t *testing.T) {
	deleted := ""
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}

	svc := newTestService(&mockUserRepo{}, &mockProfileRepo{}, sessionRepo)

	if err := svc.Logout(context.Background(), "session-1"); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if deleted != "session-1" {
		t.Errorf("deleted session = %q, want %q", deleted, "session-1")
	}
}

// TestGetCurrentUser_ExpiredSession は期限切れセッションでエラーになることを検証する。
func TestGetCurrentUser_ExpiredSession(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, nil // リポジトリは期限切れをnilとして返す
		},
	}

	svc := newTestService(&mockUserRepo{}, &mockProfileRepo{}, sessionRepo)

	if _, err := svc.GetCurrentUser(context.Background(), "expired-session"); err == nil {
		t.Fatal("expected error for expired session")
	}
}
